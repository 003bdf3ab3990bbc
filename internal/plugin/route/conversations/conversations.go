package conversations

import (
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	registryroute "github.com/chirino/chatmem-service/internal/registry/route"
	registrystore "github.com/chirino/chatmem-service/internal/registry/store"
	"github.com/chirino/chatmem-service/internal/security"
	"github.com/chirino/chatmem-service/internal/validate"
	"github.com/gin-gonic/gin"
)

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

func init() {
	registryroute.Register(registryroute.Plugin{
		Order: 100,
		Type:  registryroute.RouteTypeMain,
		Loader: func(m *registryroute.Mount) error {
			MountRoutes(m.Router, m.Store, m.Auth)
			return nil
		},
	})
}

// UpsertResponse is returned by POST /api/v1/conversations.
type UpsertResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// MountRoutes mounts the conversation API on the given router.
func MountRoutes(r *gin.Engine, store registrystore.ConversationStore, auth gin.HandlerFunc) {
	g := r.Group("/api/v1", auth)

	g.POST("/conversations", func(c *gin.Context) {
		upsertConversation(c, store)
	})
	g.GET("/conversations/:conversationId", func(c *gin.Context) {
		getConversation(c, store)
	})
	g.GET("/conversations", func(c *gin.Context) {
		listConversations(c, store)
	})
}

func upsertConversation(c *gin.Context, store registrystore.ConversationStore) {
	var payload validate.ConversationPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return
		}
		handleError(c, validate.FromDecodeError(err))
		return
	}

	conv, err := validate.Conversation(&payload)
	if err != nil {
		handleError(c, err)
		return
	}

	result, err := store.Upsert(c.Request.Context(), conv)
	if err != nil {
		handleError(c, err)
		return
	}

	message := "Conversation created successfully"
	if result.Status == registrystore.StatusUpdated {
		message = "Conversation updated successfully"
	}
	log.Debug("Conversation saved", "id", result.ID, "status", result.Status, "client", security.GetClientID(c))
	c.JSON(http.StatusOK, UpsertResponse{
		ID:      result.ID,
		Status:  string(result.Status),
		Message: message,
	})
}

func getConversation(c *gin.Context, store registrystore.ConversationStore) {
	conv, err := store.Get(c.Request.Context(), c.Param("conversationId"))
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, conv)
}

func listConversations(c *gin.Context, store registrystore.ConversationStore) {
	filter, err := validate.ListQuery(
		c.Query("skip"),
		c.Query("limit"),
		c.Query("platform"),
		c.Query("processed"),
	)
	if err != nil {
		handleError(c, err)
		return
	}

	convs, err := store.List(c.Request.Context(), filter)
	if err != nil {
		handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, convs)
}

func handleError(c *gin.Context, err error) {
	var validation *validate.Error
	var notFound *registrystore.NotFoundError

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":  "Validation failed",
			"code":   "validation_error",
			"detail": validation.Violations,
		})
	case errors.As(err, &notFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Conversation not found"})
	default:
		log.Error("Conversation request failed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"requestID", c.GetString(security.HeaderRequestID),
			"err", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
	}
}
