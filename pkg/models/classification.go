package models

// Labels of a spam classification.
const (
	LabelSpam    = "SPAM"
	LabelNotSpam = "NOT_SPAM"
)

// SinglePrediction is a single-label text classification.
type SinglePrediction struct {
	Label      string  `json:"label" validate:"required,oneof=SPAM NOT_SPAM" jsonschema:"description=The predicted label"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1" jsonschema:"description=The confidence score of the prediction"`
}

// SchemaTitle names the function sent to the model.
func (SinglePrediction) SchemaTitle() string { return "SinglePrediction" }
