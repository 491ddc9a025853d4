package handlers

import (
	"net/http"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/dom/car-marketplace/internal/service"
	"github.com/google/uuid"
)

type ConversationHandler struct {
	conversationService *service.ConversationService
	messageService      *service.MessageService
}

func NewConversationHandler(conversationService *service.ConversationService, messageService *service.MessageService) *ConversationHandler {
	return &ConversationHandler{
		conversationService: conversationService,
		messageService:      messageService,
	}
}

type StartConversationResponse struct {
	Conversation *domain.Conversation `json:"conversation"`
	Created      bool                 `json:"created"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

type CountResponse struct {
	Count int64 `json:"count"`
}

func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	conversations, err := h.conversationService.List(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, conversations)
}

func (h *ConversationHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req service.StartConversationInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	conv, created, err := h.conversationService.Start(r.Context(), userID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, StartConversationResponse{Conversation: conv, Created: created})
}

// Lookup finds the caller's conversation with a seller about a car
func (h *ConversationHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	sellerID, err := uuid.Parse(r.URL.Query().Get("sellerId"))
	if err != nil {
		writeError(w, r, domain.ValidationFailed("sellerId", "invalid sellerId"))
		return
	}
	carID, err := optionalUUIDQuery(r, "carId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	conv, err := h.conversationService.Find(r.Context(), userID, sellerID, carID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	conv, err := h.conversationService.Get(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

func (h *ConversationHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	n, err := h.conversationService.CountUnread(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

func (h *ConversationHandler) Touch(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	if err := h.conversationService.Touch(r.Context(), userID, id); err != nil {
		writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	messages, err := h.messageService.List(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messages)
}

func (h *ConversationHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	msg, err := h.messageService.Send(r.Context(), userID, id, req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

func (h *ConversationHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id")
	if !ok {
		return
	}

	n, err := h.messageService.MarkRead(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}
