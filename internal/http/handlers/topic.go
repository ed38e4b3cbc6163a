package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/roadmap-backend/internal/domain"
	domainagg "github.com/yungbote/roadmap-backend/internal/domain/aggregates"
	"github.com/yungbote/roadmap-backend/internal/http/response"
	"github.com/yungbote/roadmap-backend/internal/platform/ctxutil"
	"github.com/yungbote/roadmap-backend/internal/services"
)

type TopicHandler struct {
	topics services.TopicService
}

func NewTopicHandler(topics services.TopicService) *TopicHandler {
	return &TopicHandler{topics: topics}
}

// topicRequest takes the node kind from "type", with "kind" as an alias.
type topicRequest struct {
	Type            string         `json:"type"`
	Kind            string         `json:"kind"`
	Title           *string        `json:"title"`
	Description     *string        `json:"description"`
	ParentID        *uuid.UUID     `json:"parentId"`
	Weight          *float64       `json:"weight"`
	Status          *domain.Status `json:"status"`
	Progress        *int           `json:"progress"`
	IsPublic        *bool          `json:"isPublic"`
	ExpectedVersion *int           `json:"expectedVersion"`
}

func (r topicRequest) kind() domain.Kind {
	k := strings.TrimSpace(r.Type)
	if k == "" {
		k = strings.TrimSpace(r.Kind)
	}
	return domain.Kind(strings.ToLower(k))
}

func (r topicRequest) patch() domainagg.NodePatch {
	return domainagg.NodePatch{
		Title:       r.Title,
		Description: r.Description,
		Progress:    r.Progress,
		Weight:      r.Weight,
		Status:      r.Status,
		IsPublic:    r.IsPublic,
	}
}

func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "validation", errors.New("invalid topic id"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *TopicHandler) ListPublicRoadmaps(c *gin.Context) {
	roadmaps, err := h.topics.ListPublicRoadmaps(c.Request.Context())
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, "All roadmaps successfully retrieved", gin.H{"roadmaps": roadmaps})
}

func (h *TopicHandler) ListRoadmaps(c *gin.Context) {
	ctx := c.Request.Context()
	roadmaps, err := h.topics.ListRoadmaps(ctx, ctxutil.UserID(ctx))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, "Roadmaps successfully retrieved", gin.H{"roadmaps": roadmaps})
}

func (h *TopicHandler) ListTopics(c *gin.Context) {
	ctx := c.Request.Context()
	topics, err := h.topics.ListTopics(ctx, ctxutil.UserID(ctx))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, "Topics successfully retrieved", topics)
}

func (h *TopicHandler) GetTopic(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	topic, err := h.topics.GetNode(ctx, ctxutil.UserID(ctx), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, "Topic successfully retrieved", topic)
}

func (h *TopicHandler) GetChildren(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	children, err := h.topics.GetChildren(ctx, ctxutil.UserID(ctx), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, "Child topics successfully retrieved", children)
}

func (h *TopicHandler) CreateTopic(c *gin.Context) {
	var req topicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	in := services.CreateTopicInput{
		Kind:     req.kind(),
		ParentID: req.ParentID,
		Weight:   req.Weight,
		Status:   req.Status,
		IsPublic: req.IsPublic,
	}
	if req.Title != nil {
		in.Title = *req.Title
	}
	if req.Description != nil {
		in.Description = *req.Description
	}

	ctx := c.Request.Context()
	uid := ctxutil.UserID(ctx)
	if in.Kind == domain.KindRoadmap {
		roadmap, err := h.topics.CreateRoadmap(ctx, uid, in)
		if err != nil {
			response.RespondAPIError(c, err)
			return
		}
		response.RespondCreated(c, "Roadmap successfully created", roadmap)
		return
	}
	topic, err := h.topics.CreateTopic(ctx, uid, in)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, "Topic successfully created", topic)
}

func (h *TopicHandler) UpdateTopic(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req topicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	ctx := c.Request.Context()
	topic, err := h.topics.UpdateNode(ctx, ctxutil.UserID(ctx), id, req.patch(), req.ExpectedVersion)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	msg := "Topic successfully updated"
	if topic.Kind == domain.KindRoadmap {
		msg = "Roadmap successfully updated"
	}
	response.RespondOK(c, msg, topic)
}

func (h *TopicHandler) DeleteTopic(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	res, err := h.topics.DeleteNode(ctx, ctxutil.UserID(ctx), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	msg := "Topic successfully deleted"
	if res.Kind == domain.KindRoadmap {
		msg = "Roadmap successfully deleted"
	}
	response.RespondOK(c, msg, gin.H{"deleted": res.Deleted})
}
