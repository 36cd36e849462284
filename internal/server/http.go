package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/typecasto/halfwit/pkg/halfwit"
)

type httpServer struct {
	manager *Manager
}

// Serve exposes the manager's sessions over a RESTful HTTP API on localhost
// and blocks until the server fails.
func Serve(port int, manager *Manager) error {
	h := &httpServer{manager: manager}

	router := gin.Default()

	router.POST("/sessions", h.postSession)
	router.GET("/sessions/:sessionId", h.getStatus)
	router.GET("/sessions/:sessionId/report", h.getReport)
	router.POST("/sessions/:sessionId/abort", h.postAbort)

	return router.Run(fmt.Sprintf("localhost:%d", port))
}

type culpritSetResponse struct {
	Members  []string `json:"members"`
	Evidence []int    `json:"evidence"`
}

type statusResponse struct {
	SessionID    string               `json:"sessionId"`
	Trials       int                  `json:"trials"`
	FrontierSize int                  `json:"frontierSize"`
	Culprits     []culpritSetResponse `json:"culprits"`
	State        string               `json:"state"`
}

type reportResponse struct {
	SessionID string               `json:"sessionId"`
	Trials    int                  `json:"trials"`
	Culprits  []culpritSetResponse `json:"culprits"`
	Stall     string               `json:"stall,omitempty"`
}

func culpritSetResponses(culprits []halfwit.CulpritSet) []culpritSetResponse {
	responses := make([]culpritSetResponse, 0, len(culprits))
	for _, c := range culprits {
		responses = append(responses, culpritSetResponse{
			Members:  c.Members.Strings(),
			Evidence: c.Evidence,
		})
	}
	return responses
}

// postSession starts a new session from a yaml session config request body.
func (h *httpServer) postSession(c *gin.Context) {
	session, err := halfwit.GetSessionFromConfig(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := h.manager.Start(session)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sessionId": id})
}

func (h *httpServer) getStatus(c *gin.Context) {
	status, err := h.manager.Status(c.Param("sessionId"))
	if err != nil {
		code := http.StatusNotFound
		if errors.Is(err, halfwit.ErrJournalCorrupt) {
			code = http.StatusInternalServerError
		}
		c.JSON(code, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, statusResponse{
		SessionID:    status.SessionID,
		Trials:       status.Trials,
		FrontierSize: status.FrontierSize,
		Culprits:     culpritSetResponses(status.Culprits),
		State:        status.State,
	})
}

func (h *httpServer) getReport(c *gin.Context) {
	report, done, err := h.manager.Report(c.Param("sessionId"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if !done {
		c.JSON(http.StatusAccepted, gin.H{"state": "running"})
		return
	}
	response := reportResponse{
		SessionID: report.SessionID,
		Trials:    report.Trials,
		Culprits:  culpritSetResponses(report.Culprits),
	}
	if report.Stall != nil {
		response.Stall = report.Stall.String()
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpServer) postAbort(c *gin.Context) {
	if err := h.manager.Abort(c.Param("sessionId")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}
