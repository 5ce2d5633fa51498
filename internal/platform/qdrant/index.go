package qdrant

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/observability"
	"github.com/yungbote/evidence-backend/internal/platform/ctxutil"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

const (
	maxErrorBodyBytes  = 1024
	maxCollectionLabel = 64
)

var (
	pointIDNamespaceUUID = uuid.MustParse("6b1d3c5e-8f0a-4f7e-9c61-2a9d4e7b13f0")
	collectionUnsafe     = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)
)

// Index stores evidence entries in Qdrant, one collection per case.
type Index struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client

	ensured sync.Map
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type qdrantSearchResultItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

func NewIndex(log *logger.Logger, cfg Config) (*Index, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	cfg = cfg.Normalized()
	idx := &Index{
		log:     log.With("service", "QdrantEvidenceIndex"),
		cfg:     cfg,
		baseURL: cfg.URL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	if err := idx.Ready(context.Background()); err != nil {
		return nil, err
	}
	idx.log.Info("Qdrant evidence index ready",
		"url", idx.baseURL,
		"collection_prefix", cfg.CollectionPrefix,
		"vector_dim", cfg.VectorDim,
		"distance", cfg.Distance,
	)
	return idx, nil
}

// CollectionName maps a case id onto its collection. The readable part is
// lossy, so a digest of the raw id keeps distinct cases apart.
func (s *Index) CollectionName(caseID string) string {
	caseID = strings.TrimSpace(caseID)
	safe := collectionUnsafe.ReplaceAllString(caseID, "_")
	if len(safe) > maxCollectionLabel {
		safe = safe[:maxCollectionLabel]
	}
	sum := sha256.Sum256([]byte(caseID))
	return s.cfg.CollectionPrefix + "_" + safe + "_" + hex.EncodeToString(sum[:])[:12]
}

func (s *Index) PointID(caseID, chunkID string) string {
	return uuid.NewSHA1(pointIDNamespaceUUID, []byte(caseID+"|"+chunkID)).String()
}

func (s *Index) AddEntry(ctx context.Context, entry evidence.IndexEntry) error {
	const op = "add_entry"
	chunkID := strings.TrimSpace(entry.ChunkID)
	switch {
	case chunkID == "":
		return opErr(op, OperationErrorValidation, "chunk id is required", nil)
	case strings.TrimSpace(entry.CaseID) == "":
		return opErr(op, OperationErrorValidation, "case id is required", nil)
	case len(entry.Embedding) == 0:
		return opErr(op, OperationErrorValidation, fmt.Sprintf("entry %q has empty embedding", chunkID), nil)
	case len(entry.Embedding) != s.cfg.VectorDim:
		return opErr(op, OperationErrorValidation,
			fmt.Sprintf("entry %q dimension mismatch: expected=%d got=%d", chunkID, s.cfg.VectorDim, len(entry.Embedding)), nil)
	}
	if err := s.ensureCollection(ctx, entry.CaseID); err != nil {
		return err
	}

	req := map[string]any{"points": []map[string]any{{
		"id":      s.PointID(entry.CaseID, chunkID),
		"vector":  entry.Embedding,
		"payload": entryPayload(entry),
	}}}
	path := s.collectionPath(entry.CaseID, "/points?wait=true")
	err := s.doJSON(ctx, op, http.MethodPut, path, req, nil)
	if !IsNotFound(err) {
		return err
	}
	// The collection was dropped behind our cache, e.g. by a case clear on
	// another replica.
	s.ensured.Delete(s.CollectionName(entry.CaseID))
	if err := s.ensureCollection(ctx, entry.CaseID); err != nil {
		return err
	}
	return s.doJSON(ctx, op, http.MethodPut, path, req, nil)
}

func (s *Index) DeleteEntries(ctx context.Context, caseID string, chunkIDs []string) error {
	const op = "delete_entries"
	seen := make(map[string]struct{}, len(chunkIDs))
	points := make([]string, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		pid := s.PointID(caseID, id)
		if _, dup := seen[pid]; dup {
			continue
		}
		seen[pid] = struct{}{}
		points = append(points, pid)
	}
	if len(points) == 0 {
		return nil
	}
	err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath(caseID, "/points/delete?wait=true"), map[string]any{"points": points}, nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}

// DeleteByFilter removes every entry in the case's collection matching filter
// and reports how many were removed.
func (s *Index) DeleteByFilter(ctx context.Context, caseID string, filter map[string]any) (int, error) {
	const op = "delete_by_filter"
	qf, err := s.translate(filter)
	if err != nil {
		return 0, err
	}
	n, err := s.count(ctx, caseID, qf)
	if IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	err = s.doJSON(ctx, op, http.MethodPost, s.collectionPath(caseID, "/points/delete?wait=true"), map[string]any{"filter": qf}, nil)
	if IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteCollection drops the case's collection. Missing collections report false.
func (s *Index) DeleteCollection(ctx context.Context, caseID string) (bool, error) {
	const op = "delete_collection"
	var dropped bool
	err := s.doJSON(ctx, op, http.MethodDelete, s.collectionPath(caseID, ""), nil, &dropped)
	s.ensured.Delete(s.CollectionName(caseID))
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return dropped, nil
}

func (s *Index) Search(ctx context.Context, caseID string, vector []float32, topK int, filter map[string]any) ([]evidence.Match, error) {
	const op = "search"
	if len(vector) != s.cfg.VectorDim {
		return nil, opErr(op, OperationErrorValidation,
			fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", s.cfg.VectorDim, len(vector)), nil)
	}
	if topK <= 0 {
		topK = 10
	}
	qf, err := s.translate(filter)
	if err != nil {
		s.log.Warn("qdrant search filter rejected", "case_id", caseID, "error", err)
		return nil, err
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
	}
	if len(qf) > 0 {
		req["filter"] = qf
	}
	var raw []qdrantSearchResultItem
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath(caseID, "/points/search"), req, &raw); err != nil {
		if IsNotFound(err) {
			return []evidence.Match{}, nil
		}
		return nil, err
	}

	out := make([]evidence.Match, 0, len(raw))
	for _, item := range raw {
		entry := payloadEntry(item.Payload)
		if entry.ChunkID == "" {
			entry.ChunkID = decodePointID(item.ID)
		}
		out = append(out, evidence.Match{ChunkID: entry.ChunkID, Score: s.normalizeScore(item.Score), Entry: entry})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].ChunkID < out[j].ChunkID
		}
		return out[i].Score > out[j].Score
	})
	return out, nil
}

func (s *Index) Ready(ctx context.Context) error {
	const op = "ready"
	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, s.baseURL+"/readyz", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant ready check failed", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusErr(op, resp.StatusCode, "not ready")
	}
	return nil
}

func (s *Index) ensureCollection(ctx context.Context, caseID string) error {
	const op = "ensure_collection"
	name := s.CollectionName(caseID)
	if _, ok := s.ensured.Load(name); ok {
		return nil
	}

	var info struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size int `json:"size"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err := s.doJSON(ctx, op, http.MethodGet, s.collectionPath(caseID, ""), nil, &info)
	switch {
	case err == nil:
		if size := info.Config.Params.Vectors.Size; size != 0 && size != s.cfg.VectorDim {
			return opErr(op, OperationErrorValidation,
				fmt.Sprintf("collection %q vector size mismatch: expected=%d actual=%d", name, s.cfg.VectorDim, size), nil)
		}
	case IsNotFound(err):
		create := map[string]any{"vectors": map[string]any{"size": s.cfg.VectorDim, "distance": s.cfg.Distance}}
		if err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath(caseID, ""), create, nil); err != nil {
			// Another writer may have created it first.
			var opE *OperationError
			if !errors.As(err, &opE) || opE.StatusCode != http.StatusConflict {
				return err
			}
		}
		s.log.Info("created case collection", "collection", name)
	default:
		return err
	}
	s.ensured.Store(name, struct{}{})
	return nil
}

func (s *Index) count(ctx context.Context, caseID string, qf map[string]any) (int, error) {
	req := map[string]any{"exact": true}
	if len(qf) > 0 {
		req["filter"] = qf
	}
	var res struct {
		Count int `json:"count"`
	}
	if err := s.doJSON(ctx, "count", http.MethodPost, s.collectionPath(caseID, "/points/count"), req, &res); err != nil {
		return 0, err
	}
	return res.Count, nil
}

func (s *Index) translate(filter map[string]any) (map[string]any, error) {
	if len(filter) == 0 {
		return map[string]any{}, nil
	}
	tf, err := translateFilterMap(filter)
	if err != nil {
		return nil, err
	}
	return tf.asMap(), nil
}

func (s *Index) doJSON(ctx context.Context, op, method, path string, in any, out any) (err error) {
	start := time.Now()
	defer func() {
		status := "ok"
		if err != nil && !IsNotFound(err) {
			status = "error"
		}
		observability.Current().ObserveVectorOp(op, status, time.Since(start))
	}()

	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusErr(op, resp.StatusCode, fmt.Sprintf("body=%q", truncateBody(raw)))
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if msg := parseEnvelopeStatus(envelope.Status); msg != "" {
		return statusErr(op, resp.StatusCode, msg)
	}
	if out == nil || len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}
	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}
	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil && strings.TrimSpace(statusObject.Error) != "" {
		return strings.TrimSpace(statusObject.Error)
	}
	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

func (s *Index) collectionPath(caseID, suffix string) string {
	return "/collections/" + s.CollectionName(caseID) + suffix
}

func decodePointID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var idString string
	if err := json.Unmarshal(raw, &idString); err == nil {
		return strings.TrimSpace(idString)
	}
	var idNumber int64
	if err := json.Unmarshal(raw, &idNumber); err == nil {
		return fmt.Sprintf("%d", idNumber)
	}
	return strings.TrimSpace(string(raw))
}

func (s *Index) normalizeScore(score float64) float64 {
	switch strings.ToLower(strings.TrimSpace(s.cfg.Distance)) {
	case "euclid", "manhattan":
		if score < 0 {
			score = -score
		}
		return 1.0 / (1.0 + score)
	default:
		return score
	}
}
