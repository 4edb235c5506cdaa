// Пакет attachments хранит файлы, встроенные в описания записей, в S3-совместимом хранилище.
// Черновые файлы редактора лежат в drafts/<itemId>/, файлы сохранённой записи
// в courses/<courseId>/entries/<entryId>/.
package attachments

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appconfig "CourseEntries/internal/config"
	"CourseEntries/internal/model"
	"CourseEntries/pkg/apperrors"
)

// PluginfilePlaceholder маркер в сохранённом тексте вместо базового адреса файлов записи
const PluginfilePlaceholder = "@@PLUGINFILE@@"

// PresignExpires срок жизни ссылки на скачивание
const PresignExpires = 15 * time.Minute

// фабрики клиентов вынесены в переменные для подмены в тестах
var (
	loadDefaultConfig     = config.LoadDefaultConfig
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}
	newItemID = func() string { return uuid.NewString() }
)

// ObjectAPI подмножество методов *s3.Client, которыми пользуется Store
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Presigner выдаёт подписанные ссылки на чтение (*s3.PresignClient)
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Store переносит черновые файлы в область записи и выдаёт ссылки на них
type Store struct {
	api     ObjectAPI
	presign Presigner
	bucket  string
	log     *zap.Logger
}

// NewStore создаёт Store поверх готовых клиентов
func NewStore(api ObjectAPI, presign Presigner, bucket string, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{api: api, presign: presign, bucket: bucket, log: log}
}

// New подключается к S3 (или MinIO) по настройкам cfg
func New(ctx context.Context, cfg appconfig.S3Config, log *zap.Logger) (*Store, error) {
	awsCfg, err := loadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	if err != nil {
		return nil, fmt.Errorf("failed to load s3 config: %w", err)
	}
	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})
	return NewStore(client, newS3PresignClient(client), cfg.Bucket, log), nil
}

// DraftPrefix префикс черновой области редактора
func DraftPrefix(itemID string) string {
	return "drafts/" + itemID + "/"
}

// EntryPrefix префикс области файлов записи
func EntryPrefix(courseID, entryID int64) string {
	return fmt.Sprintf("courses/%d/entries/%d/", courseID, entryID)
}

// DraftRef ссылка на черновой файл в тексте редактора
func DraftRef(itemID, filename string) string {
	return "draftfile/" + itemID + "/" + filename
}

// cleanFilename отбрасывает каталоги из имени файла
func cleanFilename(name string) (string, error) {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || name == "." || name == ".." || name == "/" {
		return "", apperrors.Validation("invalid file name")
	}
	return name, nil
}

// UploadDraft сохраняет файл в черновую область itemID; пустой itemID генерируется.
// Возвращает itemID и ссылку, которую редактор вставляет в текст.
func (s *Store) UploadDraft(ctx context.Context, itemID, filename string, body io.Reader) (string, string, error) {
	name, err := cleanFilename(filename)
	if err != nil {
		return "", "", err
	}
	if itemID == "" {
		itemID = newItemID()
	} else if strings.ContainsAny(itemID, "/\\") {
		return "", "", apperrors.Validation("invalid itemId")
	}
	key := DraftPrefix(itemID) + name
	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to upload draft file: %w", err)
	}
	s.log.Debug("черновой файл загружен", zap.String("key", key))
	return itemID, DraftRef(itemID, name), nil
}

// PrepareDraft копирует файлы записи в новую черновую область и заменяет плейсхолдер
// в тексте ссылками на неё. Возвращает itemID и текст для редактора.
func (s *Store) PrepareDraft(ctx context.Context, courseID, entryID int64, text string) (string, string, error) {
	itemID := newItemID()
	entryPrefix := EntryPrefix(courseID, entryID)
	draftPrefix := DraftPrefix(itemID)

	files, err := s.list(ctx, entryPrefix)
	if err != nil {
		return "", "", err
	}
	for _, name := range files {
		_, err := s.api.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(s.bucket),
			CopySource: aws.String(copySource(s.bucket, entryPrefix+name)),
			Key:        aws.String(draftPrefix + name),
		})
		if err != nil {
			return "", "", fmt.Errorf("failed to copy entry file %s: %w", name, err)
		}
	}
	s.log.Debug("черновик подготовлен",
		zap.Int64("entry_id", entryID),
		zap.String("item_id", itemID),
		zap.Int("files", len(files)))
	return itemID, RewritePluginfileURLs(text, "draftfile/"+itemID+"/"), nil
}

// Rewrite переносит файлы черновика в область записи и заменяет ссылки на черновик
// плейсхолдером. Файлы записи, которых нет в черновике, удаляются.
func (s *Store) Rewrite(ctx context.Context, courseID, entryID int64, draft model.DescriptionDraft) (string, model.DescriptionFormat, error) {
	if draft.ItemID == "" {
		return draft.Text, draft.Format, nil
	}
	draftPrefix := DraftPrefix(draft.ItemID)
	entryPrefix := EntryPrefix(courseID, entryID)

	draftFiles, err := s.list(ctx, draftPrefix)
	if err != nil {
		return "", 0, err
	}
	existing, err := s.list(ctx, entryPrefix)
	if err != nil {
		return "", 0, err
	}

	keep := make(map[string]struct{}, len(draftFiles))
	for _, name := range draftFiles {
		keep[name] = struct{}{}
		_, err := s.api.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(s.bucket),
			CopySource: aws.String(copySource(s.bucket, draftPrefix+name)),
			Key:        aws.String(entryPrefix + name),
		})
		if err != nil {
			return "", 0, fmt.Errorf("failed to copy draft file %s: %w", name, err)
		}
	}
	for _, name := range existing {
		if _, ok := keep[name]; ok {
			continue
		}
		if err := s.delete(ctx, entryPrefix+name); err != nil {
			return "", 0, err
		}
	}
	for _, name := range draftFiles {
		if err := s.delete(ctx, draftPrefix+name); err != nil {
			return "", 0, err
		}
	}
	s.log.Info("вложения описания перенесены",
		zap.Int64("course_id", courseID),
		zap.Int64("entry_id", entryID),
		zap.Int("files", len(draftFiles)))
	return RewriteDraftRefs(draft.Text, draft.ItemID), draft.Format, nil
}

// FileURL возвращает временную ссылку на файл записи
func (s *Store) FileURL(ctx context.Context, courseID, entryID int64, filename string) (string, error) {
	name, err := cleanFilename(filename)
	if err != nil {
		return "", err
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(EntryPrefix(courseID, entryID) + name),
	}, s3.WithPresignExpires(PresignExpires))
	if err != nil {
		return "", fmt.Errorf("failed to presign file url: %w", err)
	}
	return req.URL, nil
}

// list возвращает имена файлов под префиксом prefix
func (s *Store) list(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if name == "" || strings.Contains(name, "/") {
				continue
			}
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *Store) delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func copySource(bucket, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return bucket + "/" + strings.Join(parts, "/")
}

// RewriteDraftRefs заменяет ссылки на черновую область itemID (относительные и абсолютные) плейсхолдером
func RewriteDraftRefs(text, itemID string) string {
	re := regexp.MustCompile(`(?:https?://[^\s"'<>]*?/)?draftfile/` + regexp.QuoteMeta(itemID) + `/`)
	return re.ReplaceAllLiteralString(text, PluginfilePlaceholder+"/")
}

// RewritePluginfileURLs подставляет базовый адрес файлов записи вместо плейсхолдера
func RewritePluginfileURLs(text, base string) string {
	return strings.ReplaceAll(text, PluginfilePlaceholder+"/", base)
}
