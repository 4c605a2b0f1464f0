package metrics

import "testing"

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/crops/diseases", "/api/crops/diseases"},
		{"/api/crops/history/64b7f0c2a1e4d5f6a7b8c9d0", "/api/crops/history/{id}"},
		{"/api/crops/diagnosis/0b9e3f7c-2d4a-4c8e-9f1b-5a6d7e8f9a0b/report.pdf", "/api/crops/diagnosis/{id}/report.pdf"},
		{"/uploads/crops/crop-1700000000000-ab12cd.jpg", "/uploads/{file}"},
	}
	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
