package workflow

import (
	"context"
	"sync"
	"time"

	"go-product-describer/internal/describer"
	apperrors "go-product-describer/internal/errors"
	"go-product-describer/internal/observer"
	"go-product-describer/pkg/models"
)

const (
	// MissingImagePrompt is shown when generation is requested without an image
	MissingImagePrompt = "Please upload an image."
	// InvalidFormatText replaces the result when the response has no usable title
	InvalidFormatText = "Error: Invalid response format."
	// GenericErrorText replaces the result on transport failures and unreadable bodies
	GenericErrorText = "Error generating description. Please try again."
	// Placeholder is rendered before anything has been generated
	Placeholder = "Your generated product description will appear here..."
)

// Controller owns the form state and the last generation outcome of one session.
// The in-flight flag is advisory: concurrent Generate calls are not serialized.
type Controller struct {
	sessionID string
	describer describer.Describer
	events    observer.Subject

	mu             sync.Mutex
	inputs         models.FormInputs
	selectionToken int
	inFlight       bool
	result         *models.GenerationResult
	text           string
}

// NewController creates a controller with default form inputs. events may be nil.
func NewController(sessionID string, d describer.Describer, events observer.Subject) *Controller {
	return &Controller{
		sessionID: sessionID,
		describer: d,
		events:    events,
		inputs:    models.DefaultFormInputs(),
	}
}

// SessionID returns the session the controller belongs to
func (c *Controller) SessionID() string {
	return c.sessionID
}

// SetImage replaces the held image unconditionally
func (c *Controller) SetImage(img models.ImageBlob) {
	c.mu.Lock()
	c.inputs.Image = &img
	c.mu.Unlock()

	c.publish(observer.GenerationEvent{
		EventType: observer.ImageSelected,
		Success:   true,
		Metadata: map[string]interface{}{
			"file_name":  img.FileName,
			"image_size": len(img.Data),
		},
	})
}

// RemoveImage clears the image and advances the selection token so the file
// control is rendered empty and the same file can be chosen again.
func (c *Controller) RemoveImage() {
	c.mu.Lock()
	c.inputs.Image = nil
	c.selectionToken++
	c.mu.Unlock()

	c.publish(observer.GenerationEvent{EventType: observer.ImageRemoved, Success: true})
}

// SetFeatures stores the typed features. They are kept on the form only.
func (c *Controller) SetFeatures(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs.Features = text
}

// SetTone replaces the selected tone
func (c *Controller) SetTone(tone models.Tone) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs.Tone = tone
}

// SetStyle replaces the selected style
func (c *Controller) SetStyle(style models.Style) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputs.Style = style
}

// InFlight reports whether a generation is awaiting a response
func (c *Controller) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

// Generate requests a description for the current inputs. Only a missing image
// is returned as an error; every other failure is recorded as the session's
// error text and Generate returns nil.
func (c *Controller) Generate(ctx context.Context) error {
	c.mu.Lock()
	if c.inputs.Image == nil {
		c.mu.Unlock()
		c.publish(observer.GenerationEvent{
			EventType:    observer.GenerationRejected,
			ErrorMessage: MissingImagePrompt,
		})
		return apperrors.NewPreconditionError(MissingImagePrompt)
	}
	req := describer.Request{
		Image:      *c.inputs.Image,
		Paragraphs: c.inputs.ParagraphCount,
		Style:      c.inputs.Style,
		Tone:       c.inputs.Tone,
	}
	c.inFlight = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.inFlight = false
		c.mu.Unlock()
	}()

	c.publish(observer.GenerationEvent{
		EventType: observer.GenerationStarted,
		Metadata: map[string]interface{}{
			"tone":  req.Tone,
			"style": req.Style,
		},
	})

	start := time.Now()
	result, err := c.describer.Describe(ctx, req)
	elapsed := time.Since(start)

	c.mu.Lock()
	if err != nil {
		c.result = nil
		c.text = failureText(err)
	} else {
		c.result = result
		c.text = result.Flatten()
	}
	c.mu.Unlock()

	if err != nil {
		c.publish(observer.GenerationEvent{
			EventType:    observer.GenerationFailed,
			Duration:     elapsed,
			ErrorMessage: err.Error(),
		})
		return nil
	}
	c.publish(observer.GenerationEvent{
		EventType: observer.GenerationCompleted,
		Duration:  elapsed,
		Success:   true,
	})
	return nil
}

// CopyText returns the flattened text, or the error text after a failure.
// It is empty until the first generation finishes.
func (c *Controller) CopyText() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text
}

// Result returns the stored result, nil after a failure or before any generation
func (c *Controller) Result() *models.GenerationResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.result == nil {
		return nil
	}
	r := *c.result
	return &r
}

// View captures everything the page needs to render
type View struct {
	Tone           models.Tone              `json:"tone"`
	Style          models.Style             `json:"style"`
	Features       string                   `json:"features"`
	ParagraphCount string                   `json:"paragraph_count"`
	HasImage       bool                     `json:"has_image"`
	ImageName      string                   `json:"image_name,omitempty"`
	ImageSize      int                      `json:"image_size,omitempty"`
	SelectionToken int                      `json:"selection_token"`
	InFlight       bool                     `json:"in_flight"`
	Result         *models.GenerationResult `json:"result,omitempty"`
	Text           string                   `json:"text"`
}

// ErrorText returns the text shown in place of a result after a failure
func (v View) ErrorText() string {
	if v.Result != nil {
		return ""
	}
	return v.Text
}

// View returns a snapshot of the controller state
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	v := View{
		Tone:           c.inputs.Tone,
		Style:          c.inputs.Style,
		Features:       c.inputs.Features,
		ParagraphCount: c.inputs.ParagraphCount,
		SelectionToken: c.selectionToken,
		InFlight:       c.inFlight,
		Text:           c.text,
	}
	if img := c.inputs.Image; img != nil {
		v.HasImage = true
		v.ImageName = img.FileName
		v.ImageSize = len(img.Data)
	}
	if c.result != nil {
		r := *c.result
		v.Result = &r
	}
	return v
}

// Image returns the held image, if any
func (c *Controller) Image() (models.ImageBlob, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inputs.Image == nil {
		return models.ImageBlob{}, false
	}
	return *c.inputs.Image, true
}

func (c *Controller) publish(event observer.GenerationEvent) {
	if c.events == nil {
		return
	}
	event.SessionID = c.sessionID
	c.events.NotifyObservers(context.Background(), event)
}

func failureText(err error) string {
	if apperrors.IsType(err, apperrors.ErrorTypeMalformed) {
		return InvalidFormatText
	}
	return GenericErrorText
}
