package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"time"

	"github.com/Deji-Tech/lawsa-iuo/internal/config"
	"github.com/Deji-Tech/lawsa-iuo/internal/database"
	"github.com/Deji-Tech/lawsa-iuo/internal/logger"
	"github.com/Deji-Tech/lawsa-iuo/internal/model"
	"github.com/Deji-Tech/lawsa-iuo/internal/repository"
	"github.com/Deji-Tech/lawsa-iuo/internal/validator"
)

// seed-questions imports courses and questions from a JSON file:
//
//	{"courses": [{"id": "law-101", "title": "...", "level": "100", "is_active": true}],
//	 "questions": [{"id": "<uuid>", "level": "100", "question_text": "...", "options": ["..."], "correct_answer": 0}]}
func main() {
	var file string
	flag.StringVar(&file, "file", "questions.json", "Path to the question seed file")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	validator.Setup()

	raw, err := os.ReadFile(file)
	if err != nil {
		log.Fatal().Err(err).Str("file", file).Msg("Failed to read seed file")
	}

	var seed model.QuestionSeedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		log.Fatal().Err(err).Msg("Seed file is not valid JSON")
	}
	if fields := validator.Struct(&seed); fields != nil {
		log.Fatal().Interface("fields", fields).Msg("Seed file failed validation")
	}
	for i, q := range seed.Questions {
		if q.CorrectOptionIndex >= len(q.Options) {
			log.Fatal().Int("index", i).Str("id", q.ID).Msg("correct_answer is outside the options")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	repo := repository.NewQuestionRepository(pool)

	for i := range seed.Courses {
		if err := repo.UpsertCourse(ctx, &seed.Courses[i]); err != nil {
			log.Fatal().Err(err).Str("course_id", seed.Courses[i].ID).Msg("Failed to upsert course")
		}
	}

	failed := 0
	for i := range seed.Questions {
		if err := repo.UpsertQuestion(ctx, &seed.Questions[i]); err != nil {
			failed++
			log.Error().Err(err).Str("id", seed.Questions[i].ID).Msg("Failed to upsert question")
		}
	}

	log.Info().
		Int("courses", len(seed.Courses)).
		Int("questions", len(seed.Questions)-failed).
		Int("failed", failed).
		Msg("Seeding complete")
	if failed > 0 {
		os.Exit(1)
	}
}
