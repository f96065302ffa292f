package deck_rebuild

import (
	"fmt"

	"github.com/google/uuid"
)

const (
	OutputName        = "rebuilt.pptx"
	MappingName       = "mapping.json"
	FailedMappingName = "failed_mapping.json"

	pptxContentType = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	jsonContentType = "application/json"
)

// OutputKey is also the idempotency key: a job whose output object exists is done.
func OutputKey(jobID uuid.UUID) string {
	return fmt.Sprintf("jobs/%s/output/%s", jobID, OutputName)
}

func MappingKey(jobID uuid.UUID) string {
	return fmt.Sprintf("jobs/%s/%s", jobID, MappingName)
}

func FailedMappingKey(jobID uuid.UUID) string {
	return fmt.Sprintf("jobs/%s/%s", jobID, FailedMappingName)
}
