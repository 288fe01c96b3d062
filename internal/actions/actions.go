// Package actions invokes the device's "delete all" endpoints. They are
// independent of channel state: a failure is only reported, never acted on.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/example/larvawatch/internal/httpclient"
)

// Action paths served by the device.
const (
	DeleteImagesPath        = "/api/images/delete-all"
	DeleteNotificationsPath = "/api/notifications/delete-all"
)

// ErrRejected is matched when the device answers 2xx with success=false.
var ErrRejected = errors.New("device rejected request")

// ActionError is an external action failure.
type ActionError struct {
	Action string
	Err    error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Action, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// ImagesResult is the outcome of deleting all images.
type ImagesResult struct {
	TotalImages int    `json:"total_images"`
	Message     string `json:"message,omitempty"`
}

// NotificationsResult is the outcome of deleting all notifications.
type NotificationsResult struct {
	DeletedCount int    `json:"deleted_count"`
	Message      string `json:"message,omitempty"`
}

type deleteResponse struct {
	Success      *bool  `json:"success"`
	Message      string `json:"message"`
	TotalImages  *int   `json:"total_images"`
	DeletedCount *int   `json:"deleted_count"`
}

// Client calls the device actions.
type Client struct {
	http    *httpclient.Client
	baseURL string
	logger  *slog.Logger
}

// NewClient creates an action client for the device at baseURL.
func NewClient(client *httpclient.Client, baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		http:    client,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// DeleteAllImages removes every saved image on the device.
func (c *Client) DeleteAllImages(ctx context.Context) (ImagesResult, error) {
	resp, err := c.delete(ctx, "delete all images", DeleteImagesPath)
	if err != nil {
		return ImagesResult{}, err
	}
	res := ImagesResult{Message: resp.Message}
	switch {
	case resp.TotalImages != nil:
		res.TotalImages = *resp.TotalImages
	case resp.DeletedCount != nil:
		// the device reports an empty store with deleted_count
		res.TotalImages = *resp.DeletedCount
	}
	c.logger.Info("images deleted", slog.Int("total_images", res.TotalImages))
	return res, nil
}

// DeleteAllNotifications removes every stored notification on the device.
func (c *Client) DeleteAllNotifications(ctx context.Context) (NotificationsResult, error) {
	resp, err := c.delete(ctx, "delete all notifications", DeleteNotificationsPath)
	if err != nil {
		return NotificationsResult{}, err
	}
	res := NotificationsResult{Message: resp.Message}
	if resp.DeletedCount != nil {
		res.DeletedCount = *resp.DeletedCount
	}
	c.logger.Info("notifications deleted", slog.Int("deleted_count", res.DeletedCount))
	return res, nil
}

func (c *Client) delete(ctx context.Context, action, path string) (deleteResponse, error) {
	var resp deleteResponse
	if err := c.http.DeleteJSON(ctx, c.baseURL+path, &resp); err != nil {
		c.logger.Warn("action failed", slog.String("action", action), slog.String("error", err.Error()))
		return deleteResponse{}, &ActionError{Action: action, Err: err}
	}
	if resp.Success != nil && !*resp.Success {
		err := ErrRejected
		if resp.Message != "" {
			err = fmt.Errorf("%w: %s", ErrRejected, resp.Message)
		}
		return deleteResponse{}, &ActionError{Action: action, Err: err}
	}
	return resp, nil
}
