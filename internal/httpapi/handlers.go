package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kejora-ai/orchestrator/pkg/streamproto"
	"github.com/kejora-ai/orchestrator/pkg/types"
)

// queryRequest is the wire shape POSTed to /query and /stream.
type queryRequest struct {
	Text           string              `json:"text"`
	UserID         string              `json:"user_id"`
	UserTier       int                 `json:"user_tier"`
	ConversationID string              `json:"conversation_id"`
	SessionID      string              `json:"session_id"`
	CorrelationID  string              `json:"correlation_id"`
	History        []types.ChatMessage `json:"history"`
}

func (req *queryRequest) toEnvelope() (*types.QueryEnvelope, error) {
	return types.NewQueryEnvelope(
		req.Text, req.UserID, req.UserTier,
		req.ConversationID, req.SessionID, req.CorrelationID,
		req.History,
	)
}

// writeError writes a JSON error body, matching the teacher's convention of
// always responding with a structured payload rather than a bare status
// line.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Query handles POST /query: the synchronous Orchestrator.Query surface.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	envelope, err := req.toEnvelope()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	answer, err := h.orchestrator.Query(r.Context(), envelope)
	if err != nil {
		slog.Error("query failed", "correlation_id", envelope.CorrelationID, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(answer)
}

// Stream handles POST /stream: the Stream Events surface (§4.T3), framed as
// SSE via streamproto.Sink.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	envelope, err := req.toEnvelope()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sink, err := streamproto.NewSink(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "streaming unsupported by this connection")
		return
	}

	if err := h.orchestrator.StreamQuery(r.Context(), envelope, sink); err != nil {
		slog.Error("stream query ended with error", "correlation_id", envelope.CorrelationID, "error", err)
	}
}

// ingestItemRequest is one document accepted by the admin ingest endpoint.
type ingestItemRequest struct {
	ID         string `json:"id"`
	Collection string `json:"collection"`
	Tier       int    `json:"tier"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	SourceURL  string `json:"source_url"`
	Category   string `json:"category"`
	// PriorScore is the requester's own confidence this item is novel. The
	// Duplicate Filter accepts it but neither layer uses it (§4.L5).
	PriorScore float64 `json:"prior_score"`
}

type ingestItemResponse struct {
	ID        string  `json:"id"`
	Published bool    `json:"published"`
	Duplicate bool    `json:"duplicate"`
	SimilarTo string  `json:"similar_to,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	Score     float64 `json:"confidence"`
}

// IngestItems handles POST /ingest/items: the admin surface that runs each
// item through the Duplicate Filter before handing survivors to the Hybrid
// Retriever for indexing (§4.L2, §4.L5).
func (h *Handler) IngestItems(w http.ResponseWriter, r *http.Request) {
	var req []ingestItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req) == 0 {
		writeError(w, http.StatusBadRequest, "items must not be empty")
		return
	}

	byCollection := make(map[string][]types.Document)
	responses := make([]ingestItemResponse, 0, len(req))

	for _, item := range req {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}

		resp := ingestItemResponse{ID: item.ID}

		if h.dedup != nil {
			result, err := h.dedup.Validate(r.Context(), item.Title, item.Body, item.SourceURL, item.PriorScore)
			if err != nil {
				slog.Error("dedup validate failed", "item_id", item.ID, "error", err)
				writeError(w, http.StatusInternalServerError, "duplicate check failed")
				return
			}
			resp.Duplicate = result.Duplicate
			resp.SimilarTo = result.SimilarTo
			resp.Reason = result.Reason
			resp.Score = result.Confidence
			if !result.Approved {
				responses = append(responses, resp)
				continue
			}
		}

		resp.Published = true
		responses = append(responses, resp)
		byCollection[item.Collection] = append(byCollection[item.Collection], types.Document{
			ID:         item.ID,
			Collection: item.Collection,
			Tier:       item.Tier,
			Title:      item.Title,
			Body:       item.Body,
			SourceURL:  item.SourceURL,
		})
	}

	if h.retriever != nil {
		for collection, docs := range byCollection {
			if err := h.retriever.Ingest(r.Context(), collection, docs); err != nil {
				slog.Error("ingest failed", "collection", collection, "error", err)
				writeError(w, http.StatusInternalServerError, "ingest failed for collection "+collection)
				return
			}
		}
	}

	if h.dedup != nil {
		for _, docs := range byCollection {
			for _, doc := range docs {
				_ = h.dedup.Publish(types.PublishedItem{
					ID:          doc.ID,
					Title:       doc.Title,
					URL:         doc.SourceURL,
					PublishedAt: time.Now(),
				})
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(responses)
}

// healthResponse is the /health payload: one status per component.
type healthResponse struct {
	Components map[string]string `json:"components"`
}

// Health handles GET /health, reporting the Metrics & Health component's
// snapshot (§4.T4).
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Components: map[string]string{}}
	status := http.StatusOK

	if h.health != nil {
		for component, s := range h.health.Snapshot() {
			resp.Components[component] = string(s)
			if s != "HEALTHY" {
				status = http.StatusServiceUnavailable
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
