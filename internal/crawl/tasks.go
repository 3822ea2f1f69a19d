package crawl

// GenerateTasks builds the full task list for a run: the cross-product of
// search terms and page indices, term-major and page-minor, preserving the
// input order of terms. Page indices are 0-based.
func GenerateTasks(terms []string, location, salaryHint string, pagesPerTerm int) []SearchTask {
	if pagesPerTerm <= 0 {
		return nil
	}
	tasks := make([]SearchTask, 0, len(terms)*pagesPerTerm)
	for _, term := range terms {
		for page := 0; page < pagesPerTerm; page++ {
			tasks = append(tasks, SearchTask{
				SearchTerm: term,
				Location:   location,
				SalaryHint: salaryHint,
				PageIndex:  page,
			})
		}
	}
	return tasks
}
