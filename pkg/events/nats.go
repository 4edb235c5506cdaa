// Пакет events публикует события жизненного цикла записей в NATS
package events

import "strings"

// Conn минимальный интерфейс NATS-подключения (*nats.Conn ему удовлетворяет)
type Conn interface {
	Publish(subject string, data []byte) error
}

// NATSClient публикует сообщения в темы вида <prefix>.<kind>
type NATSClient struct {
	conn   Conn
	prefix string
}

// NewClient создаёт NATSClient для подключения conn и префикса темы prefix
func NewClient(conn Conn, prefix string) *NATSClient {
	return &NATSClient{conn: conn, prefix: strings.TrimSuffix(prefix, ".")}
}

// Subject возвращает полную тему для типа события kind
func (n *NATSClient) Subject(kind string) string {
	if n.prefix == "" {
		return kind
	}
	if kind == "" {
		return n.prefix
	}
	return n.prefix + "." + kind
}

// Publish отправляет data в тему события kind
func (n *NATSClient) Publish(kind string, data []byte) error {
	return n.conn.Publish(n.Subject(kind), data)
}
