package workflow

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go-product-describer/internal/describer"
	apperrors "go-product-describer/internal/errors"
	"go-product-describer/internal/observer"
	"go-product-describer/pkg/models"
)

type stubDescriber struct {
	mu       sync.Mutex
	calls    []describer.Request
	result   *models.GenerationResult
	err      error
	duringFn func()
}

func (s *stubDescriber) Describe(ctx context.Context, req describer.Request) (*models.GenerationResult, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	fn := s.duringFn
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
	return s.result, s.err
}

func (s *stubDescriber) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

var testImage = models.ImageBlob{FileName: "mouse.jpg", ContentType: "image/jpeg", Data: []byte{0xFF, 0xD8, 0xFF, 0xE0}}

func mouseResult() *models.GenerationResult {
	return &models.GenerationResult{
		Title:            "Wireless Mouse",
		ShortDescription: "Ergonomic and fast.",
		Content:          "Ergonomic design.\n2.4GHz wireless.",
	}
}

const mouseText = "Title:\nWireless Mouse\n\nShort Description:\nErgonomic and fast.\n\nKey Features:\nErgonomic design.\n2.4GHz wireless."

func TestController_Defaults(t *testing.T) {
	c := NewController("s1", &stubDescriber{}, nil)
	v := c.View()

	if v.Tone != models.ToneProfessional || v.Style != models.StyleConcise {
		t.Errorf("Unexpected defaults tone=%s style=%s", v.Tone, v.Style)
	}
	if v.ParagraphCount != "1" || v.HasImage || v.InFlight || v.Result != nil || v.Text != "" {
		t.Errorf("Unexpected initial view %+v", v)
	}
	if c.CopyText() != "" {
		t.Error("Expected empty copy text before any generation")
	}
}

func TestController_GenerateWithoutImage(t *testing.T) {
	stub := &stubDescriber{result: mouseResult()}
	c := NewController("s1", stub, nil)

	err := c.Generate(context.Background())
	if !apperrors.IsType(err, apperrors.ErrorTypePrecondition) {
		t.Fatalf("Expected precondition error, got: %v", err)
	}
	if !strings.Contains(err.Error(), MissingImagePrompt) {
		t.Errorf("Expected prompt %q in %v", MissingImagePrompt, err)
	}
	if stub.callCount() != 0 {
		t.Errorf("Expected no network call, got %d", stub.callCount())
	}
	if c.InFlight() {
		t.Error("Expected in-flight flag to stay false")
	}
}

func TestController_GenerateSuccess(t *testing.T) {
	stub := &stubDescriber{result: mouseResult()}
	c := NewController("s1", stub, nil)
	c.SetImage(testImage)
	c.SetTone(models.ToneCasual)
	c.SetStyle(models.StyleDetailed)

	var sawInFlight bool
	stub.duringFn = func() { sawInFlight = c.InFlight() }

	if err := c.Generate(context.Background()); err != nil {
		t.Fatalf("Expected success, got: %v", err)
	}
	if !sawInFlight {
		t.Error("Expected in-flight flag to be set during the call")
	}
	if c.InFlight() {
		t.Error("Expected in-flight flag to be cleared")
	}
	if c.CopyText() != mouseText {
		t.Errorf("Unexpected copy text %q", c.CopyText())
	}
	if r := c.Result(); r == nil || r.Title != "Wireless Mouse" {
		t.Errorf("Unexpected result %+v", r)
	}

	req := stub.calls[0]
	if req.Tone != models.ToneCasual || req.Style != models.StyleDetailed || req.Paragraphs != "1" {
		t.Errorf("Unexpected request %+v", req)
	}
	if req.Image.FileName != "mouse.jpg" {
		t.Errorf("Expected uploaded image to be sent, got %s", req.Image.FileName)
	}
}

func TestController_GenerateFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantText string
	}{
		{"timeout", apperrors.NewTimeoutError("slow", context.DeadlineExceeded), GenericErrorText},
		{"network", apperrors.NewNetworkError("down", errors.New("refused")), GenericErrorText},
		{"unparseable", apperrors.NewUnparseableResponseError("junk", errors.New("bad json")), GenericErrorText},
		{"missing title", apperrors.NewMalformedResponseError("invalid response format", models.ErrMissingTitle), InvalidFormatText},
		{"untyped", errors.New("surprise"), GenericErrorText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubDescriber{result: mouseResult()}
			c := NewController("s1", stub, nil)
			c.SetImage(testImage)

			// a previous success must be discarded by the failure
			if err := c.Generate(context.Background()); err != nil {
				t.Fatal(err)
			}
			stub.result, stub.err = nil, tt.err

			if err := c.Generate(context.Background()); err != nil {
				t.Fatalf("Expected failure to be recovered locally, got: %v", err)
			}
			if c.InFlight() {
				t.Error("Expected in-flight flag to be cleared")
			}
			if c.Result() != nil {
				t.Error("Expected no stored result after failure")
			}
			if c.CopyText() != tt.wantText {
				t.Errorf("Expected text %q, got %q", tt.wantText, c.CopyText())
			}
			if v := c.View(); v.ErrorText() != tt.wantText {
				t.Errorf("Expected view error text %q, got %q", tt.wantText, v.ErrorText())
			}
		})
	}
}

func TestController_FeaturesAreNotForwarded(t *testing.T) {
	// the form collects features but the request always carries the fixed prompt
	var (
		mu     sync.Mutex
		fields = map[string]string{}
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err == nil {
			mu.Lock()
			for k, v := range r.MultipartForm.Value {
				fields[k] = v[0]
			}
			mu.Unlock()
		}
		io.WriteString(w, `{"title":"T","short_description":"S","content":"C"}`)
	}))
	defer server.Close()

	c := NewController("s1", describer.NewClient(server.URL, "user123", 5*time.Second), nil)
	c.SetImage(testImage)
	c.SetFeatures("Waterproof\nLong battery life")

	if err := c.Generate(context.Background()); err != nil {
		t.Fatal(err)
	}
	mu.Lock()
	got := fields["features"]
	mu.Unlock()
	if got != describer.FixedFeaturesPrompt {
		t.Errorf("Expected fixed features prompt, got %q", got)
	}
	if c.View().Features != "Waterproof\nLong battery life" {
		t.Error("Expected typed features to stay in the form state")
	}
}

func TestController_WirelessMouseScenario(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("Expected multipart request: %v", err)
		}
		if r.FormValue("tone") != "casual" || r.FormValue("style") != "detailed" {
			t.Errorf("Unexpected tone/style %q/%q", r.FormValue("tone"), r.FormValue("style"))
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"title":"Wireless Mouse","short_description":"Ergonomic and fast.","content":"Ergonomic design.\n2.4GHz wireless."}`)
	}))
	defer server.Close()

	c := NewController("s1", describer.NewClient(server.URL, "user123", 5*time.Second), nil)
	c.SetImage(testImage)
	c.SetTone(models.ToneCasual)
	c.SetStyle(models.StyleDetailed)

	if err := c.Generate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.CopyText() != mouseText {
		t.Errorf("Unexpected flattened text %q", c.CopyText())
	}
}

func TestController_TimeoutScenario(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
			io.WriteString(w, `{"title":"too late"}`)
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	c := NewController("s1", describer.NewClient(server.URL, "user123", 50*time.Millisecond), nil)
	c.SetImage(testImage)

	if err := c.Generate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if c.InFlight() {
		t.Error("Expected in-flight flag to be false")
	}
	if c.Result() != nil {
		t.Error("Expected no stored result")
	}
	if c.CopyText() != GenericErrorText {
		t.Errorf("Expected %q, got %q", GenericErrorText, c.CopyText())
	}
}

func TestController_ServiceBodies(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantText string
	}{
		{"object", `{"title":"Wireless Mouse","short_description":"Ergonomic and fast.","content":"Ergonomic design.\n2.4GHz wireless."}`, mouseText},
		{"string encoded object", `"{\"title\":\"Wireless Mouse\",\"short_description\":\"Ergonomic and fast.\",\"content\":\"Ergonomic design.\\n2.4GHz wireless.\"}"`, mouseText},
		{"missing title", `{"content":"C"}`, InvalidFormatText},
		{"array", `[1,2]`, InvalidFormatText},
		{"string not json", `"hello"`, GenericErrorText},
		{"not json", `not json`, GenericErrorText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			c := NewController("s1", describer.NewClient(server.URL, "user123", 5*time.Second), nil)
			c.SetImage(testImage)

			if err := c.Generate(context.Background()); err != nil {
				t.Fatal(err)
			}
			if c.CopyText() != tt.wantText {
				t.Errorf("Expected %q, got %q", tt.wantText, c.CopyText())
			}
		})
	}
}

func TestController_RemoveAndReselectSameImage(t *testing.T) {
	c := NewController("s1", &stubDescriber{result: mouseResult()}, nil)
	c.SetImage(testImage)
	before := c.View().SelectionToken

	c.RemoveImage()
	v := c.View()
	if v.HasImage {
		t.Error("Expected image to be cleared")
	}
	if v.SelectionToken == before {
		t.Error("Expected selection token to change so the file control resets")
	}
	if err := c.Generate(context.Background()); !apperrors.IsType(err, apperrors.ErrorTypePrecondition) {
		t.Errorf("Expected precondition error after removal, got: %v", err)
	}

	c.SetImage(testImage)
	if !c.View().HasImage {
		t.Fatal("Expected the same file to be accepted again")
	}
	if err := c.Generate(context.Background()); err != nil {
		t.Errorf("Expected generation to work after reselecting, got: %v", err)
	}
}

func TestController_PublishesEvents(t *testing.T) {
	pub := observer.NewEventPublisher()
	metrics := observer.NewMetricsObserver()
	pub.Subscribe(metrics)

	stub := &stubDescriber{result: mouseResult()}
	c := NewController("s1", stub, pub)
	_ = c.Generate(context.Background())
	c.SetImage(testImage)
	_ = c.Generate(context.Background())
	stub.result, stub.err = nil, apperrors.NewNetworkError("down", nil)
	_ = c.Generate(context.Background())
	pub.Wait()

	snap := metrics.Snapshot()
	want := map[string]int64{
		"rejected_generations":   1,
		"total_generations":      2,
		"successful_generations": 1,
		"failed_generations":     1,
		"images_selected":        1,
	}
	for key, expected := range want {
		if got := snap[key]; got != expected {
			t.Errorf("Expected %s=%d, got %v", key, expected, got)
		}
	}
}
