package model

// Course groups questions by academic level.
type Course struct {
	ID       string `json:"id" validate:"required,max=64"`
	Title    string `json:"title" validate:"required,max=255"`
	Level    string `json:"level" validate:"required,max=50"`
	IsActive bool   `json:"is_active"`
}

// QuestionSeedFile is the layout read by the question seeder.
type QuestionSeedFile struct {
	Courses   []Course       `json:"courses" validate:"dive"`
	Questions []SeedQuestion `json:"questions" validate:"dive"`
}
