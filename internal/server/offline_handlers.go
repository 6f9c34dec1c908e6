package server

import (
	"net/http"

	"github.com/festbuddy/offlinebox/internal/coordinator"
	"github.com/labstack/echo/v4"
)

type offline struct {
	coordinator *coordinator.Coordinator
}

// State renders a fresh aggregate snapshot.
func (h *offline) State(c echo.Context) error {
	h.coordinator.Refresh()
	return c.JSON(http.StatusOK, h.coordinator.State())
}

// Drafts renders the draft listings of one owner. An empty owner query
// parameter addresses the guest partition.
func (h *offline) Drafts(c echo.Context) error {
	var ownerID *string
	if owner := c.QueryParam("owner"); owner != "" {
		ownerID = &owner
	}

	posts, err := h.coordinator.Drafts().ListPostDrafts(ownerID)
	if err != nil {
		return err
	}

	comments, err := h.coordinator.Drafts().ListCommentDrafts(ownerID, c.QueryParam("post"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"post_drafts":    posts,
		"comment_drafts": comments,
	})
}

// QueueStats renders the aggregate queue counters.
func (h *offline) QueueStats(c echo.Context) error {
	stats, err := h.coordinator.Queue().Stats()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}

// RetryFailed resets every terminally failed item for another delivery round.
func (h *offline) RetryFailed(c echo.Context) error {
	count, err := h.coordinator.Queue().RetryAllFailed()
	if err != nil {
		return err
	}

	h.coordinator.Refresh()
	return c.JSON(http.StatusOK, echo.Map{
		"retried": count,
	})
}

// ClearQueue unconditionally empties the queue, e.g. on account switch.
func (h *offline) ClearQueue(c echo.Context) error {
	count, err := h.coordinator.Queue().Clear()
	if err != nil {
		return err
	}

	h.coordinator.Refresh()
	return c.JSON(http.StatusOK, echo.Map{
		"cleared": count,
	})
}

// Cleanup runs one expiry/completed sweep on demand.
func (h *offline) Cleanup(c echo.Context) error {
	drafts, items, err := h.coordinator.Cleanup()
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{
		"removed_drafts":     drafts,
		"removed_sync_items": items,
	})
}
