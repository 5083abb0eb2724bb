package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/shopcore/internal/domain"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplay         = "X-Idempotency-Replay"

	defaultIdempotencyTTL = 24 * time.Hour
)

// IdempotencyMiddleware кэширует ответы мутирующих запросов по заголовку
// Idempotency-Key. Повтор с тем же ключом и телом возвращает сохранённый
// ответ; тот же ключ с другим телом отклоняется.
type IdempotencyMiddleware struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	logger *log.Entry
}

// NewIdempotencyMiddleware создаёт обёртку идемпотентности с TTL по умолчанию.
func NewIdempotencyMiddleware(repo domain.IdempotencyRepository, logger *log.Entry) *IdempotencyMiddleware {
	if logger == nil {
		logger = log.New().WithField("component", "idempotency")
	}
	return &IdempotencyMiddleware{repo: repo, ttl: defaultIdempotencyTTL, logger: logger}
}

// WithTTL задаёт время жизни записи идемпотентности.
func (m *IdempotencyMiddleware) WithTTL(ttl time.Duration) *IdempotencyMiddleware {
	m.ttl = ttl
	return m
}

// Wrap оборачивает обработчик. Запросы без Idempotency-Key проходят насквозь.
func (m *IdempotencyMiddleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(headerIdempotencyKey)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		hash := requestHash(r, body)
		if _, err := m.repo.CreateProcessing(key, hash, time.Now().UTC().Add(m.ttl)); err != nil {
			m.handleExistingKey(w, key, hash, err)
			return
		}

		recorder := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		if recorder.status < http.StatusInternalServerError {
			err = m.repo.MarkDone(key, recorder.body.Bytes(), recorder.status)
		} else {
			err = m.repo.MarkFailed(key, recorder.body.Bytes(), recorder.status)
		}
		if err != nil {
			m.logger.WithError(err).WithField("key", key).Warn("persist idempotent response failed")
		}
	})
}

// handleExistingKey обрабатывает повтор ключа: replay завершённого ответа,
// конфликт для ещё обрабатываемого запроса или отказ при другом теле.
func (m *IdempotencyMiddleware) handleExistingKey(w http.ResponseWriter, key, hash string, createErr error) {
	if !errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists) && !errors.Is(createErr, domain.ErrIdempotencyHashMismatch) {
		m.logger.WithError(createErr).WithField("key", key).Error("idempotency lookup failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	record, err := m.repo.Get(key)
	if err != nil {
		m.logger.WithError(err).WithField("key", key).Error("idempotency record vanished")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if record.RequestHash != hash {
		writeError(w, statusFor(domain.ErrIdempotencyHashMismatch), domain.ErrIdempotencyHashMismatch.Error())
		return
	}

	if record.Status == domain.IdempotencyStatusProcessing {
		writeError(w, http.StatusConflict, "request with this idempotency key is still being processed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(headerReplay, "true")
	w.WriteHeader(record.HTTPStatus)
	_, _ = w.Write(record.ResponseBody)
}

// requestHash связывает ключ с конкретным запросом: метод, путь и тело.
func requestHash(r *http.Request, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(r.Method))
	sum.Write([]byte{0})
	sum.Write([]byte(r.URL.Path))
	sum.Write([]byte{0})
	sum.Write([]byte(r.Header.Get(headerUserID)))
	sum.Write([]byte{0})
	sum.Write(body)
	return hex.EncodeToString(sum.Sum(nil))
}

// responseRecorder дублирует ответ в буфер для последующего replay.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *responseRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.status = status
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}
