// Package grading holds the pass rule and certificate percentage arithmetic.
package grading

// DefaultPassPercent is the share of total marks required to pass.
const DefaultPassPercent = 60

// RequiredToPass returns ceil(totalMarks * percent / 100) using integer math.
func RequiredToPass(totalMarks, percent int) int {
	if totalMarks <= 0 || percent <= 0 {
		return 0
	}
	return (totalMarks*percent + 99) / 100
}

// Passed reports whether score meets the threshold for totalMarks.
func Passed(score, totalMarks, percent int) bool {
	return score >= RequiredToPass(totalMarks, percent)
}

// Percentage returns round(score / totalMarks * 100), half away from zero.
// Zero total marks yields 0.
func Percentage(score, totalMarks int) int {
	if totalMarks <= 0 {
		return 0
	}
	return (score*200 + totalMarks) / (2 * totalMarks)
}
