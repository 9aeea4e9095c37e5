package routes

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/portfolio-globe/backend/internal/server/middleware"
	"github.com/portfolio-globe/backend/internal/storage"
	"github.com/portfolio-globe/backend/pkg/logger"
)

const (
	proxyCacheControl = "public, max-age=604800, immutable"
	defaultImageType  = "application/octet-stream"
	// upstream bodies above this are refused
	maxImageBytes = 16 << 20
)

// ProxyImageHandler fetches an image on behalf of the browser so it can be
// used as a texture without CORS restrictions.
func ProxyImageHandler(c echo.Context) error {
	target := c.QueryParam("url")
	if target == "" {
		return c.String(http.StatusBadRequest, "Missing 'url' query param")
	}

	app := c.(*middleware.AppContext).App
	ctx := c.Request().Context()

	if app.Images != nil {
		img, ok, err := app.Images.Get(ctx, target)
		if err != nil {
			logger.Warn("[Proxy] cache lookup failed", "url", target, "err", err)
		}
		if ok {
			return writeImage(c, img)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		logger.Error("[Proxy] invalid upstream url", "url", target, "err", err)
		return c.String(http.StatusInternalServerError, "Error fetching image")
	}
	client := app.ImageClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		logger.Error("[Proxy] upstream fetch failed", "url", target, "err", err)
		return c.String(http.StatusInternalServerError, "Error fetching image")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.String(resp.StatusCode, "Upstream fetch failed")
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		logger.Error("[Proxy] reading upstream body failed", "url", target, "err", err)
		return c.String(http.StatusInternalServerError, "Error fetching image")
	}
	if len(data) > maxImageBytes {
		return c.String(http.StatusInternalServerError, "Error fetching image")
	}

	img := storage.Image{Data: data, ContentType: resp.Header.Get(echo.HeaderContentType)}
	if img.ContentType == "" {
		img.ContentType = defaultImageType
	}
	if app.Images != nil {
		if err := app.Images.Put(ctx, target, img); err != nil {
			logger.Warn("[Proxy] cache store failed", "url", target, "err", err)
		}
	}
	return writeImage(c, img)
}

func writeImage(c echo.Context, img storage.Image) error {
	h := c.Response().Header()
	h.Set(echo.HeaderAccessControlAllowOrigin, "*")
	h.Set("Cache-Control", proxyCacheControl)
	contentType := img.ContentType
	if contentType == "" {
		contentType = defaultImageType
	}
	return c.Blob(http.StatusOK, contentType, img.Data)
}
