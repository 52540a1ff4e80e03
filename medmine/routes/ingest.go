package routes

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"medmine/medmine/config"
	"medmine/medmine/controllers"
	"medmine/medmine/services/ingest"
	"medmine/medmine/utils/logging"
	"medmine/medmine/utils/types"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func ingestRoutes(r chi.Router, ctrl *controllers.IngestController, cfg config.Config) {
	// POST /process : multipart field "file"
	r.Post("/process", handleJSON(func(r *http.Request) (any, int, error) {
		if cfg.MaxUploadBytes > 0 {
			r.Body = http.MaxBytesReader(nil, r.Body, cfg.MaxUploadBytes)
		}
		file, hdr, err := r.FormFile("file")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("file is larger than %d bytes", maxErr.Limit)
			}
			return nil, http.StatusBadRequest, fmt.Errorf("missing multipart file field %q", "file")
		}
		defer file.Close()
		if _, err := ingest.Extension(hdr.Filename); err != nil {
			return nil, 0, err
		}
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		resp, err := ctrl.Process(r.Context(), hdr.Filename, data)
		if err != nil {
			return nil, 0, err
		}
		return resp, http.StatusOK, nil
	}))

	// GET /data/{batch_id}?offset=&limit=
	r.Get("/data/{batch_id}", handleJSON(func(r *http.Request) (any, int, error) {
		offset, err := queryInt(r, "offset", 0)
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		limit, err := queryInt(r, "limit", ingest.DefaultLimit)
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		rows, err := ctrl.Data(r.Context(), chi.URLParam(r, "batch_id"), offset, limit)
		if err != nil {
			return nil, 0, err
		}
		return rows, http.StatusOK, nil
	}))

	r.Get("/batches/{batch_id}", handleJSON(func(r *http.Request) (any, int, error) {
		st, err := ctrl.Batch(r.Context(), chi.URLParam(r, "batch_id"))
		if err != nil {
			return nil, 0, err
		}
		return st, http.StatusOK, nil
	}))

	// GET /batches/{batch_id}/file : the archived upload
	r.Get("/batches/{batch_id}/file", func(w http.ResponseWriter, r *http.Request) {
		name, data, err := ctrl.Original(r.Context(), chi.URLParam(r, "batch_id"))
		if err != nil {
			writeError(w, r, 0, err)
			return
		}
		w.Header().Set("Content-Type", http.DetectContentType(data))
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
		w.Write(data)
	})

}

// watchRoutes holds the websocket route. It must stay outside the request
// timeout, a batch may take longer to store.
func watchRoutes(r chi.Router, ctrl *controllers.IngestController) {
	// websocket streaming the batch status until it is terminal
	r.HandleFunc("/batches/{batch_id}/ws", func(w http.ResponseWriter, r *http.Request) {
		batchID := chi.URLParam(r, "batch_id")
		if _, err := ctrl.Batch(r.Context(), batchID); err != nil {
			writeError(w, r, 0, err)
			return
		}
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			logging.ErrorLogger.Error("websocket accept error", zap.Error(err))
			return
		}
		defer conn.CloseNow()

		ctx := conn.CloseRead(r.Context())
		err = ctrl.Watch(ctx, batchID, func(st types.BatchStatus) error {
			return wsjson.Write(ctx, conn, st)
		})
		if err != nil {
			logging.AppLogger.Info("batch watch ended", zap.String("batch_id", batchID), zap.Error(err))
			conn.Close(websocket.StatusInternalError, "watch ended")
			return
		}
		conn.Close(websocket.StatusNormalClosure, "")
	})
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("query parameter %s must be an integer", key)
	}
	return n, nil
}
