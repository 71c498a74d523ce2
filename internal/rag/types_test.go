package rag

import (
	"errors"
	"testing"
)

func TestNewRetrievalConfig(t *testing.T) {
	tests := []struct {
		name       string
		topK       int
		threshold  float32
		rerankTopK int
		wantErr    bool
	}{
		{"defaults", 5, 0.1, 10, false},
		{"threshold zero", 3, 0, 3, false},
		{"threshold one", 3, 1, 3, false},
		{"threshold above one", 3, 1.1, 3, true},
		{"negative threshold", 3, -0.01, 3, true},
		{"zero top_k", 0, 0.5, 0, true},
		{"negative top_k", -2, 0.5, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := NewRetrievalConfig(tt.topK, tt.threshold, false, tt.rerankTopK)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("NewRetrievalConfig() expected error, got %+v", cfg)
				}
				var verr *ValidationError
				if !errors.As(err, &verr) {
					t.Errorf("expected ValidationError, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewRetrievalConfig() unexpected error: %v", err)
			}
			if cfg.TopK != tt.topK {
				t.Errorf("TopK = %d, want %d", cfg.TopK, tt.topK)
			}
		})
	}
}

func TestNewRetrievalConfigRaisesRerankTopK(t *testing.T) {
	cfg, err := NewRetrievalConfig(10, 0.1, true, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RerankTopK != 10 {
		t.Errorf("RerankTopK = %d, want 10 (raised to TopK)", cfg.RerankTopK)
	}
}

func TestCopyMetadataIsIndependent(t *testing.T) {
	src := map[string]any{"source_file": "a.pdf", "chunk_index": 3}
	cp := CopyMetadata(src)
	cp["chunk_index"] = 9
	if src["chunk_index"] != 3 {
		t.Error("CopyMetadata() did not produce an independent map")
	}
}

func TestErrorKindsAreDistinguishable(t *testing.T) {
	var verr *ValidationError
	var ferr *UnsupportedFormatError
	var serr *ExternalServiceError
	var derr *DecodingError

	err := error(&ValidationError{Msg: "count mismatch"})
	if !errors.As(err, &verr) {
		t.Error("ValidationError not matchable with errors.As")
	}
	if errors.As(err, &ferr) {
		t.Error("ValidationError matched UnsupportedFormatError")
	}

	err = &ExternalServiceError{Service: "embedding", Status: "40000"}
	if !errors.As(err, &serr) {
		t.Error("ExternalServiceError not matchable with errors.As")
	}

	err = &DecodingError{Encodings: []string{"utf-8", "cp949"}}
	if !errors.As(err, &derr) {
		t.Error("DecodingError not matchable with errors.As")
	}
}
