// Package state persists the session's form values, last output reference
// and prompt history under fixed string keys.
package state

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"imagegen/internal/ledger"
)

// Storage keys. The names match what earlier clients wrote so existing
// history keeps loading.
const (
	KeyPrompt         = "prompt"
	KeyOutputImageURL = "outputImageUrl"
	KeyPromptHistory  = "promptHistory"
	KeyModelIndex     = "modelIndex"
	KeyNegativePrompt = "negativePrompt"
	KeyHeight         = "height"
	KeyWidth          = "width"
)

// KV is the persistence backend. *db.Store satisfies it.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// FormState is the current, possibly unsubmitted, form.
type FormState struct {
	Prompt         string `json:"prompt"`
	NegativePrompt string `json:"negativePrompt"`
	ModelID        string `json:"modelId"`
	Height         string `json:"height,omitempty"`
	Width          string `json:"width,omitempty"`
}

// Snapshot is everything read back at startup.
type Snapshot struct {
	Form      FormState
	OutputRef string
	Ledger    *ledger.Ledger
}

type Store struct {
	kv           KV
	models       []string
	defaultModel string
}

// New builds a store. models is the configured model order, used to map the
// legacy numeric modelIndex onto a model id.
func New(kv KV, models []string, defaultModel string) *Store {
	return &Store{kv: kv, models: models, defaultModel: defaultModel}
}

// Load reads every key, substituting neutral defaults for missing or
// unparseable values. Only backend failures are returned as errors.
func (s *Store) Load(ctx context.Context) (Snapshot, error) {
	get := func(key string) (string, error) {
		v, _, err := s.kv.Get(ctx, key)
		if err != nil {
			return "", fmt.Errorf("load %s: %w", key, err)
		}
		return v, nil
	}

	var snap Snapshot
	var err error
	if snap.Form.Prompt, err = get(KeyPrompt); err != nil {
		return Snapshot{}, err
	}
	if snap.Form.NegativePrompt, err = get(KeyNegativePrompt); err != nil {
		return Snapshot{}, err
	}
	rawModel, err := get(KeyModelIndex)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Form.ModelID = s.resolveModel(rawModel)

	height, err := get(KeyHeight)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Form.Height = normalizeDimension(height)
	width, err := get(KeyWidth)
	if err != nil {
		return Snapshot{}, err
	}
	snap.Form.Width = normalizeDimension(width)

	if snap.OutputRef, err = get(KeyOutputImageURL); err != nil {
		return Snapshot{}, err
	}

	rawHistory, err := get(KeyPromptHistory)
	if err != nil {
		return Snapshot{}, err
	}
	l, skipped, err := ledger.Decode(rawHistory)
	if err != nil {
		slog.Warn("state: stored prompt history is unreadable, starting empty", "err", err)
		l = ledger.New(nil)
	}
	for _, err := range skipped {
		slog.Warn("state: dropping invalid history entry", "err", err)
	}
	snap.Ledger = l
	return snap, nil
}

// resolveModel accepts a model id, or a numeric index written by older
// clients, and falls back to the default model.
func (s *Store) resolveModel(raw string) string {
	raw = strings.TrimSpace(raw)
	for _, id := range s.models {
		if id == raw {
			return id
		}
	}
	if idx, err := strconv.Atoi(raw); err == nil && idx >= 0 && idx < len(s.models) {
		return s.models[idx]
	}
	return s.defaultModel
}

func normalizeDimension(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if n, err := strconv.Atoi(v); err != nil || n <= 0 {
		return ""
	}
	return v
}

func (s *Store) SetPrompt(ctx context.Context, v string) error {
	return s.kv.Set(ctx, KeyPrompt, v)
}

func (s *Store) SetNegativePrompt(ctx context.Context, v string) error {
	return s.kv.Set(ctx, KeyNegativePrompt, v)
}

func (s *Store) SetModel(ctx context.Context, id string) error {
	return s.kv.Set(ctx, KeyModelIndex, id)
}

func (s *Store) SetHeight(ctx context.Context, v string) error {
	return s.kv.Set(ctx, KeyHeight, v)
}

func (s *Store) SetWidth(ctx context.Context, v string) error {
	return s.kv.Set(ctx, KeyWidth, v)
}

func (s *Store) SetOutputRef(ctx context.Context, v string) error {
	return s.kv.Set(ctx, KeyOutputImageURL, v)
}

// SetForm writes every form field.
func (s *Store) SetForm(ctx context.Context, f FormState) error {
	for _, kv := range [][2]string{
		{KeyPrompt, f.Prompt},
		{KeyNegativePrompt, f.NegativePrompt},
		{KeyModelIndex, f.ModelID},
		{KeyHeight, f.Height},
		{KeyWidth, f.Width},
	} {
		if err := s.kv.Set(ctx, kv[0], kv[1]); err != nil {
			return fmt.Errorf("save %s: %w", kv[0], err)
		}
	}
	return nil
}

// SetLedger serializes and writes the whole history.
func (s *Store) SetLedger(ctx context.Context, l *ledger.Ledger) error {
	raw, err := l.Encode()
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, KeyPromptHistory, raw); err != nil {
		return fmt.Errorf("save %s: %w", KeyPromptHistory, err)
	}
	return nil
}
