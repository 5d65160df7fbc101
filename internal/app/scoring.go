package app

import "learnloop-service/internal/domain"

// scoreResult is the outcome of grading a whole submission.
type scoreResult struct {
	responses []domain.QuestionResponse
	correct   int
	score     int
	passed    bool
}

// scoreSubmission grades responses against quiz content. Responses for
// questions the quiz does not contain are dropped. The score is the
// round-down percentage of correct responses over all quiz questions.
func scoreSubmission(quiz domain.Quiz, responses []domain.QuestionResponse) scoreResult {
	var res scoreResult
	seen := make(map[string]struct{}, len(responses))
	for _, resp := range responses {
		question, ok := quiz.Question(resp.QuestionID)
		if !ok {
			continue
		}
		// a question answered twice counts once, first answer wins
		if _, dup := seen[question.ID]; dup {
			continue
		}
		seen[question.ID] = struct{}{}

		selected := dedupe(resp.SelectedOptions)
		correct := gradeQuestion(question, selected)
		if correct {
			res.correct++
		}
		res.responses = append(res.responses, domain.QuestionResponse{
			QuestionID:      question.ID,
			SelectedOptions: selected,
			Correct:         correct,
		})
	}

	if total := len(quiz.Questions); total > 0 {
		res.score = res.correct * 100 / total
	}
	res.passed = res.score >= quiz.PassingScore
	return res
}

// gradeQuestion applies the per-type correctness rule to a deduplicated selection.
func gradeQuestion(q domain.Question, selected []string) bool {
	correct := toSet(q.CorrectOptions)
	switch q.Type {
	case domain.QuestionMulti:
		if len(selected) != len(correct) {
			return false
		}
		for _, opt := range selected {
			if _, ok := correct[opt]; !ok {
				return false
			}
		}
		return true
	default:
		if len(selected) != 1 {
			return false
		}
		_, ok := correct[selected[0]]
		return ok
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return []string{}
	}
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
