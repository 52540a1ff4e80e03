package routes

import (
	"encoding/json"
	"fmt"
	"net/http"

	"medmine/medmine/controllers"
	"medmine/medmine/utils/types"

	"github.com/go-chi/chi/v5"
)

func chatRoutes(r chi.Router, ctrl *controllers.ChatController) {
	// POST /chat : one turn
	r.Post("/chat", handleJSON(func(r *http.Request) (any, int, error) {
		var req types.ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err)
		}
		resp, err := ctrl.Chat(r.Context(), req)
		if err != nil {
			return nil, 0, err
		}
		return resp, http.StatusOK, nil
	}))

	// GET /chats/{session_id} : chats of a session, newest activity first
	r.Get("/chats/{session_id}", handleJSON(func(r *http.Request) (any, int, error) {
		list, err := ctrl.ListChats(r.Context(), chi.URLParam(r, "session_id"))
		if err != nil {
			return nil, 0, err
		}
		return list, http.StatusOK, nil
	}))

	r.Get("/chats/{session_id}/{chat_id}", handleJSON(func(r *http.Request) (any, int, error) {
		h, err := ctrl.GetChat(r.Context(), chi.URLParam(r, "session_id"), chi.URLParam(r, "chat_id"))
		if err != nil {
			return nil, 0, err
		}
		return h, http.StatusOK, nil
	}))

	r.Delete("/chats/{session_id}/{chat_id}", func(w http.ResponseWriter, r *http.Request) {
		err := ctrl.DeleteChat(r.Context(), chi.URLParam(r, "session_id"), chi.URLParam(r, "chat_id"))
		if err != nil {
			writeError(w, r, 0, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
