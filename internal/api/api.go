package api

import (
	"net/http"
	"strconv"

	"github.com/faasmesh/faasmesh/internal/messages"
	"github.com/faasmesh/faasmesh/internal/scheduler"
	"github.com/labstack/echo/v4"
)

type statusReport struct {
	Host      string                 `json:"host"`
	Resources messages.HostResources `json:"resources"`
	LiveHosts []string               `json:"liveHosts"`
}

// GetServerStatus reports this host's capacity and its view of the mesh.
func GetServerStatus(c echo.Context) error {
	sched := scheduler.GetScheduler()

	hosts, err := sched.GetAvailableHosts()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, statusReport{
		Host:      sched.ThisHost(),
		Resources: sched.GetThisHostResources(),
		LiveHosts: hosts,
	})
}

func messageIdParam(c echo.Context) (uint32, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint32(id), true
}

// PollResult reports the status string of a call. Reading the status
// consumes the call's result entry (see Scheduler.GetMessageStatus).
func PollResult(c echo.Context) error {
	id, ok := messageIdParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid message id"})
	}

	status, err := scheduler.GetScheduler().GetMessageStatus(id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": status})
}

// GetExecGraph renders the chained-call tree below a root message.
func GetExecGraph(c echo.Context) error {
	id, ok := messageIdParam(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid message id"})
	}

	graph, err := scheduler.GetScheduler().GetFunctionExecGraph(id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, graph)
}

// Flush triggers a mesh-wide flush from this host.
func Flush(c echo.Context) error {
	if err := scheduler.GetScheduler().BroadcastFlush(); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusOK)
}
