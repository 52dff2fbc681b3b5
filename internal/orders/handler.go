package orders

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joao-fontenele/botmarket/internal/auth"
	"github.com/joao-fontenele/botmarket/internal/httpx"
)

type Handler struct {
	service      *Service
	templatesDir string
	logger       *slog.Logger
}

// NewHandler serves order routes. Template files are read from templatesDir.
func NewHandler(service *Service, templatesDir string, logger *slog.Logger) *Handler {
	return &Handler{
		service:      service,
		templatesDir: templatesDir,
		logger:       logger,
	}
}

type createOrderRequest struct {
	TemplateID int64 `json:"template_id" validate:"required,gt=0"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	var req createOrderRequest
	if err := httpx.Decode(r, &req); err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	order, err := h.service.Create(r.Context(), id, req.TemplateID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, order)
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	orders, err := h.service.ListForUser(r.Context(), id.UserID)
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	h.logger.Debug("orders listed", "user_id", id.UserID, "count", len(orders))
	httpx.WriteJSON(w, h.logger, http.StatusOK, orders)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	order, err := h.service.Get(r.Context(), id.UserID, r.PathValue("id"))
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	order, err := h.service.Cancel(r.Context(), id.UserID, r.PathValue("id"))
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

func (h *Handler) HandleDownloadLink(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	link, err := h.service.DownloadLink(r.Context(), id.UserID, r.PathValue("id"))
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, link)
}

func (h *Handler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	download, err := h.service.Download(r.Context(), id.UserID, r.PathValue("token"))
	if err != nil {
		httpx.WriteDomainError(w, h.logger, err)
		return
	}

	template := download.Template
	if template.FilePath != "" {
		path := filepath.Join(h.templatesDir, filepath.Clean("/"+template.FilePath))
		f, err := os.Open(path)
		if err == nil {
			defer func() { _ = f.Close() }()
			h.serveFile(w, template.Slug+filepath.Ext(template.FilePath), f)
			return
		}
		if !errors.Is(err, fs.ErrNotExist) {
			httpx.WriteDomainError(w, h.logger, err)
			return
		}
		h.logger.Warn("template file missing, serving placeholder", "template_id", template.ID, "path", path)
	}

	body := fmt.Sprintf("Download link for %s. Downloads remaining: %d", template.Title, download.Order.DownloadsRemaining())
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", template.Slug+".txt"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

// serveFile writes the whole file with a 200. Every call has already consumed
// a download, so conditional and Range request headers are not honoured.
func (h *Handler) serveFile(w http.ResponseWriter, name string, f *os.File) {
	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if info, err := f.Stat(); err == nil {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Warn("template file copy interrupted", "file", name, "error", err)
	}
}
