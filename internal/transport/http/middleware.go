package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"CourseEntries/pkg/metrics"
)

type ctxKey int

const userKey ctxKey = 0

// UserHeader заголовок с идентификатором пользователя от шлюза аутентификации
const UserHeader = "X-User-ID"

// UserFromContext возвращает идентификатор пользователя или пустую строку
func UserFromContext(ctx context.Context) string {
	user, _ := ctx.Value(userKey).(string)
	return user
}

// WithUser кладёт идентификатор пользователя в контекст
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// IdentityMiddleware переносит X-User-ID в контекст запроса
func IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user := r.Header.Get(UserHeader); user != "" {
			r = r.WithContext(WithUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

// statusResponseWriter захватывает статус-код ответа
type statusResponseWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader сохраняет статус и вызывает оригинальный WriteHeader
func (w *statusResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// routePath шаблон маршрута mux, чтобы метки метрик не зависели от query и id
func routePath(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return r.URL.Path
}

// LoggingMiddleware логирует каждый запрос и панику, записывает латентность в метрики
func LoggingMiddleware(log *zap.Logger) mux.MiddlewareFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			srw := &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}
			defer func() {
				if rec := recover(); rec != nil {
					dur := time.Since(start)
					metrics.APILatency.WithLabelValues(r.Method, routePath(r), "500").Observe(dur.Seconds())
					log.Error("panic",
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.Int("status", http.StatusInternalServerError),
						zap.Duration("duration", dur),
						zap.Any("panic", rec))
					panic(rec)
				}
			}()
			next.ServeHTTP(srw, r)
			dur := time.Since(start)
			metrics.APILatency.WithLabelValues(r.Method, routePath(r), strconv.Itoa(srw.status)).Observe(dur.Seconds())
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", srw.status),
				zap.Duration("duration", dur))
		})
	}
}
