package runtime

import (
	"testing"

	"github.com/auralith/kokorod/internal/config"
	"go.opentelemetry.io/otel/attribute"
)

func TestNodeAttributesCarryModelIdentity(t *testing.T) {
	cfg := config.Default()
	cfg.NodeName = "kokorod-test"
	cfg.Node.Role = "synthesis"
	cfg.Model.File = "kokoro-v1.0.onnx"
	cfg.Model.VoicesFile = "voices-v1.0.bin"

	attrs := nodeAttributes(cfg)
	want := map[attribute.Key]string{
		"service.name":      "kokorod-test",
		"kokorod.node.role": "synthesis",
		"kokorod.model":     "kokoro-v1.0.onnx",
		"kokorod.voices":    "voices-v1.0.bin",
	}
	found := make(map[attribute.Key]string)
	for _, kv := range attrs {
		found[kv.Key] = kv.Value.AsString()
	}
	for key, value := range want {
		if found[key] != value {
			t.Fatalf("attribute %s = %q, want %q", key, found[key], value)
		}
	}
}
