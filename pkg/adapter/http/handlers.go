package http

import (
	"fmt"
	"net/http"
	"path"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/marmos91/dittorepo/pkg/repository"
	"github.com/marmos91/dittorepo/pkg/session"
	"github.com/marmos91/dittorepo/pkg/stream"
)

type pathRequest struct {
	Path string `json:"path" binding:"required"`
}

type registerRequest struct {
	Path     string `json:"path" binding:"required"`
	MimeType string `json:"mimetype"`
}

type deleteFilesRequest struct {
	Paths []string `json:"paths" binding:"required,min=1"`
}

type renameRequest struct {
	From string `json:"from" binding:"required"`
	To   string `json:"to" binding:"required"`
}

type unsupportedRequest struct {
	Path   string `json:"path"`
	Target string `json:"target"`
}

type openFileRequest struct {
	Path string `json:"path" binding:"required"`
	Mode string `json:"mode" binding:"omitempty,oneof=r rw w"`
}

type openByIDRequest struct {
	ID int64 `json:"id" binding:"required,gt=0"`
}

type proxyResponse struct {
	Token   string      `json:"token"`
	Session string      `json:"session"`
	Servant uint32      `json:"servant"`
	Kind    stream.Kind `json:"kind"`
}

type sessionResponse struct {
	ID      string    `json:"id"`
	Client  string    `json:"client"`
	Created time.Time `json:"created"`
	Streams int       `json:"streams"`
}

// repository resolves the :repo parameter and applies the client access rules.
func (a *HTTPAdapter) repository(c *gin.Context, write bool) (*repository.Repository, bool) {
	name := c.Param("repo")
	if err := a.registry.CheckAccess(name, c.ClientIP(), write); err != nil {
		writeError(c, err)
		return nil, false
	}
	repo, err := a.registry.Repository(name)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return repo, true
}

// session returns the live session named by the session header.
func (a *HTTPAdapter) session(c *gin.Context) (*session.Session, bool) {
	id := c.GetHeader(SessionHeader)
	if id == "" {
		writeError(c, fmt.Errorf("%w: missing %s header", errBadRequest, SessionHeader))
		return nil, false
	}
	sess, err := a.sessions.Get(id)
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return sess, true
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeError(c, fmt.Errorf("%w: %v", errBadRequest, err))
		return false
	}
	return true
}

// queryPath returns the ?path= parameter; absent means the repository root.
func queryPath(c *gin.Context, repo *repository.Repository) string {
	if p := c.Query("path"); p != "" {
		return p
	}
	return repo.RootPath()
}

func (a *HTTPAdapter) handleHealth(c *gin.Context) {
	if err := a.registry.Healthcheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"repositories": a.registry.CountRepositories(),
		"sessions":     a.sessions.Len(),
	})
}

func (a *HTTPAdapter) handleListRepositories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"repositories": a.registry.ListRepositories()})
}

func (a *HTTPAdapter) handleRoot(c *gin.Context) {
	repo, ok := a.repository(c, false)
	if !ok {
		return
	}
	rec, err := repo.Root(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (a *HTTPAdapter) handleList(c *gin.Context) {
	repo, ok := a.repository(c, false)
	if !ok {
		return
	}
	p := queryPath(c, repo)

	if files, _ := strconv.ParseBool(c.Query("files")); files {
		records, err := repo.ListFiles(c.Request.Context(), p)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"files": records})
		return
	}

	paths, err := repo.List(c.Request.Context(), p)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"paths": paths})
}

func (a *HTTPAdapter) handleMimetype(c *gin.Context) {
	repo, ok := a.repository(c, false)
	if !ok {
		return
	}
	mt, err := repo.Mimetype(c.Request.Context(), c.Query("path"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mimetype": mt})
}

func (a *HTTPAdapter) handleExists(c *gin.Context) {
	repo, ok := a.repository(c, false)
	if !ok {
		return
	}
	exists, err := repo.FileExists(c.Request.Context(), c.Query("path"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": exists})
}

func (a *HTTPAdapter) handleRegister(c *gin.Context) {
	var req registerRequest
	if !bind(c, &req) {
		return
	}
	repo, ok := a.repository(c, true)
	if !ok {
		return
	}
	rec, err := repo.Register(c.Request.Context(), req.Path, req.MimeType)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (a *HTTPAdapter) handleCreate(c *gin.Context) {
	var req pathRequest
	if !bind(c, &req) {
		return
	}
	repo, ok := a.repository(c, true)
	if !ok {
		return
	}
	created, err := repo.Create(c.Request.Context(), req.Path)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"created": created})
}

func (a *HTTPAdapter) handleMakeDir(c *gin.Context) {
	var req pathRequest
	if !bind(c, &req) {
		return
	}
	repo, ok := a.repository(c, true)
	if !ok {
		return
	}
	if err := repo.MakeDir(c.Request.Context(), req.Path); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *HTTPAdapter) handleDelete(c *gin.Context) {
	var req pathRequest
	if !bind(c, &req) {
		return
	}
	repo, ok := a.repository(c, true)
	if !ok {
		return
	}
	if err := repo.Delete(c.Request.Context(), req.Path); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *HTTPAdapter) handleDeleteFiles(c *gin.Context) {
	var req deleteFilesRequest
	if !bind(c, &req) {
		return
	}
	repo, ok := a.repository(c, true)
	if !ok {
		return
	}
	undeleted, err := repo.DeleteFiles(c.Request.Context(), req.Paths)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"undeleted": undeleted})
}

func (a *HTTPAdapter) handleRename(c *gin.Context) {
	var req renameRequest
	if !bind(c, &req) {
		return
	}
	repo, ok := a.repository(c, true)
	if !ok {
		return
	}
	writeError(c, repo.Rename(c.Request.Context(), req.From, req.To))
}

// handleUnsupported serves render, thumbs, transfer and load.
func (a *HTTPAdapter) handleUnsupported(c *gin.Context) {
	var req unsupportedRequest
	if !bind(c, &req) {
		return
	}
	repo, ok := a.repository(c, false)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var err error
	switch path.Base(c.FullPath()) {
	case "render":
		err = repo.Render(ctx, req.Path)
	case "thumbs":
		err = repo.Thumbs(ctx, req.Path)
	case "transfer":
		err = repo.Transfer(ctx, req.Path, req.Target)
	default:
		err = repo.Load(ctx, req.Path)
	}
	writeError(c, err)
}

func (a *HTTPAdapter) handleOpenFile(c *gin.Context) {
	var req openFileRequest
	if !bind(c, &req) {
		return
	}
	mode, err := stream.ParseMode(req.Mode)
	if err != nil {
		writeError(c, err)
		return
	}
	repo, ok := a.repository(c, mode.CanWrite())
	if !ok {
		return
	}
	sess, ok := a.session(c)
	if !ok {
		return
	}
	proxy, err := repo.File(c.Request.Context(), sess, req.Path, string(mode))
	writeProxy(c, proxy, err)
}

func (a *HTTPAdapter) handleOpenFileByID(c *gin.Context) {
	var req openByIDRequest
	if !bind(c, &req) {
		return
	}
	repo, ok := a.repository(c, false)
	if !ok {
		return
	}
	sess, ok := a.session(c)
	if !ok {
		return
	}
	proxy, err := repo.FileByID(c.Request.Context(), sess, req.ID)
	writeProxy(c, proxy, err)
}

func (a *HTTPAdapter) handleOpenPixels(c *gin.Context) {
	var req pathRequest
	if !bind(c, &req) {
		return
	}
	repo, ok := a.repository(c, false)
	if !ok {
		return
	}
	sess, ok := a.session(c)
	if !ok {
		return
	}
	proxy, err := repo.Pixels(c.Request.Context(), sess, req.Path)
	writeProxy(c, proxy, err)
}

func writeProxy(c *gin.Context, proxy session.Proxy, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	token, err := proxy.Token()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, proxyResponse{
		Token:   token,
		Session: proxy.SessionID,
		Servant: proxy.ServantID,
		Kind:    proxy.Kind,
	})
}

func (a *HTTPAdapter) handleCreateSession(c *gin.Context) {
	sess := a.sessions.Create(c.ClientIP())
	c.JSON(http.StatusCreated, describeSession(sess))
}

func (a *HTTPAdapter) handleGetSession(c *gin.Context) {
	sess, err := a.sessions.Get(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, describeSession(sess))
}

func (a *HTTPAdapter) handleCloseSession(c *gin.Context) {
	if err := a.sessions.Close(c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func describeSession(s *session.Session) sessionResponse {
	return sessionResponse{
		ID:      s.ID,
		Client:  s.Client,
		Created: s.Created,
		Streams: s.Servants(),
	}
}
