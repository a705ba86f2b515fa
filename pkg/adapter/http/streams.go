package http

import (
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/marmos91/dittorepo/pkg/registry"
	"github.com/marmos91/dittorepo/pkg/session"
	"github.com/marmos91/dittorepo/pkg/stream"
)

type truncateRequest struct {
	Size *int64 `json:"size" binding:"required,gte=0"`
}

// resolveStream parses the :token parameter and checks it belongs to the
// session named in the header.
func (a *HTTPAdapter) resolveStream(c *gin.Context) (session.Proxy, *session.Session, stream.Servant, bool) {
	proxy, err := session.ParseProxy(c.Param("token"))
	if err != nil {
		writeError(c, err)
		return session.Proxy{}, nil, nil, false
	}

	owner := c.GetHeader(SessionHeader)
	if owner == "" {
		writeError(c, fmt.Errorf("%w: missing %s header", errBadRequest, SessionHeader))
		return session.Proxy{}, nil, nil, false
	}
	if owner != proxy.SessionID {
		writeError(c, fmt.Errorf("%w: stream belongs to another session", registry.ErrAccessDenied))
		return session.Proxy{}, nil, nil, false
	}

	sess, sv, err := a.sessions.Resolve(proxy)
	if err != nil {
		writeError(c, err)
		return session.Proxy{}, nil, nil, false
	}
	return proxy, sess, sv, true
}

func (a *HTTPAdapter) fileStream(c *gin.Context) (*stream.FileStream, bool) {
	_, _, sv, ok := a.resolveStream(c)
	if !ok {
		return nil, false
	}
	fs, isFile := sv.(*stream.FileStream)
	if !isFile {
		writeError(c, fmt.Errorf("%w: %s stream does not support this operation", errBadRequest, sv.Kind()))
		return nil, false
	}
	return fs, true
}

func (a *HTTPAdapter) pixelStream(c *gin.Context) (*stream.PixelStream, bool) {
	_, _, sv, ok := a.resolveStream(c)
	if !ok {
		return nil, false
	}
	ps, isPixels := sv.(*stream.PixelStream)
	if !isPixels {
		writeError(c, fmt.Errorf("%w: %s stream does not support this operation", errBadRequest, sv.Kind()))
		return nil, false
	}
	return ps, true
}

func (a *HTTPAdapter) handleStreamInfo(c *gin.Context) {
	_, _, sv, ok := a.resolveStream(c)
	if !ok {
		return
	}
	info, err := sv.Info()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (a *HTTPAdapter) handleStreamRead(c *gin.Context) {
	fs, ok := a.fileStream(c)
	if !ok {
		return
	}

	offset, err := int64Query(c, "offset", 0)
	if err != nil {
		writeError(c, err)
		return
	}
	length, err := int64Query(c, "length", int64(a.config.MaxReadSize))
	if err != nil {
		writeError(c, err)
		return
	}
	if offset < 0 || length < 0 || length > int64(a.config.MaxReadSize) {
		writeError(c, fmt.Errorf("%w: offset=%d length=%d (max %d)", errBadRequest, offset, length, a.config.MaxReadSize))
		return
	}

	data, err := fs.Read(offset, int(length))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func (a *HTTPAdapter) handleStreamWrite(c *gin.Context) {
	fs, ok := a.fileStream(c)
	if !ok {
		return
	}

	offset, err := int64Query(c, "offset", 0)
	if err != nil {
		writeError(c, err)
		return
	}
	if offset < 0 {
		writeError(c, fmt.Errorf("%w: negative offset", errBadRequest))
		return
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, int64(a.config.MaxReadSize)+1))
	if err != nil {
		writeError(c, fmt.Errorf("%w: reading body: %v", errBadRequest, err))
		return
	}
	if len(data) > a.config.MaxReadSize {
		writeError(c, fmt.Errorf("%w: body exceeds %d bytes", errBadRequest, a.config.MaxReadSize))
		return
	}

	n, err := fs.WriteAt(data, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"written": n})
}

func (a *HTTPAdapter) handleStreamTruncate(c *gin.Context) {
	var req truncateRequest
	if !bind(c, &req) {
		return
	}
	fs, ok := a.fileStream(c)
	if !ok {
		return
	}
	if err := fs.Truncate(*req.Size); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *HTTPAdapter) handleStreamSync(c *gin.Context) {
	fs, ok := a.fileStream(c)
	if !ok {
		return
	}
	if err := fs.Sync(); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *HTTPAdapter) handleStreamDimensions(c *gin.Context) {
	ps, ok := a.pixelStream(c)
	if !ok {
		return
	}
	dims, err := ps.Dimensions()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, dims)
}

func (a *HTTPAdapter) handleStreamRegion(c *gin.Context) {
	ps, ok := a.pixelStream(c)
	if !ok {
		return
	}
	dims, err := ps.Dimensions()
	if err != nil {
		writeError(c, err)
		return
	}

	var rect [4]int64
	for i, key := range []string{"x", "y", "w", "h"} {
		def := int64(0)
		switch key {
		case "w":
			def = int64(dims.Width)
		case "h":
			def = int64(dims.Height)
		}
		if rect[i], err = int64Query(c, key, def); err != nil {
			writeError(c, err)
			return
		}
	}
	x, y, w, h := int(rect[0]), int(rect[1]), int(rect[2]), int(rect[3])

	if err := stream.CheckRegion(dims, x, y, w, h); err != nil {
		writeError(c, err)
		return
	}
	if w > a.config.MaxReadSize/4/h {
		writeError(c, fmt.Errorf("%w: region %dx%d exceeds %d bytes", errBadRequest, w, h, a.config.MaxReadSize))
		return
	}

	data, err := ps.Region(x, y, w, h)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("X-Region-Width", strconv.Itoa(w))
	c.Header("X-Region-Height", strconv.Itoa(h))
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func (a *HTTPAdapter) handleStreamRelease(c *gin.Context) {
	proxy, sess, _, ok := a.resolveStream(c)
	if !ok {
		return
	}
	if err := sess.Release(proxy.ServantID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func int64Query(c *gin.Context, key string, def int64) (int64, error) {
	raw := c.Query(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", errBadRequest, key, raw)
	}
	return v, nil
}
