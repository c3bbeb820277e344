package api

import (
	"github.com/labstack/echo/v4"
)

// ServeAudioClip serves an archived audio file by name.
func (c *Controller) ServeAudioClip(ctx echo.Context) error {
	filename := ctx.Param("filename")

	fullPath, err := c.Archive.Resolve(filename)
	if err != nil {
		return c.HandleCategorizedError(ctx, err, "Invalid file request")
	}
	return ctx.File(fullPath)
}
