package patient

import (
	"time"

	"github.com/google/uuid"
)

// Patient is the aggregate root of the clinical record. Deleting a patient
// cascades to every owned sub-entity.
type Patient struct {
	ID         uuid.UUID `db:"id" json:"id"`
	FullName   string    `db:"full_name" json:"full_name"`
	DNI        *string   `db:"dni" json:"dni,omitempty"`
	Email      *string   `db:"email" json:"email,omitempty"`
	DoctorName *string   `db:"doctor_name" json:"doctor_name,omitempty"`
	Notes      *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Consultation is a clinical encounter owned by a patient.
type Consultation struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	Date      *string   `db:"date" json:"date,omitempty"` // YYYY-MM-DD
	Summary   *string   `db:"summary" json:"summary,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Study is an imaging or laboratory study owned by a patient, optionally
// linked to the consultation that ordered it.
type Study struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	ConsultationID *uuid.UUID `db:"consultation_id" json:"consultation_id,omitempty"`
	StudyType      *string    `db:"study_type" json:"study_type,omitempty"`
	StudyDate      *string    `db:"study_date" json:"study_date,omitempty"`
	Findings       *string    `db:"findings" json:"findings,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
}

// Screening is a lung-screening record owned by a patient. Its follow-ups
// live in the reminder domain and share the control-reminder lifecycle.
type Screening struct {
	ID         uuid.UUID `db:"id" json:"id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	LungRADS   *string   `db:"lung_rads" json:"lung_rads,omitempty"`
	Conclusion *string   `db:"conclusion" json:"conclusion,omitempty"`
	ExtraEmail *string   `db:"extra_email" json:"extra_email,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
