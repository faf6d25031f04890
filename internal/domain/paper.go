package domain

// KeyPrefix is the storage namespace for all examdex keys.
const KeyPrefix = "examdex:"

// FileType tags the role of a source document within a paper set.
type FileType string

const (
	FileTypeQuestionPaper   FileType = "QP" // question paper
	FileTypeMarkingScheme   FileType = "MS" // marking scheme
	FileTypeExaminerReport  FileType = "ER" // examiner report
	FileTypeGradeThresholds FileType = "GT" // grade thresholds
)

// ValidFileType reports whether t is one of the known file-type tags.
func ValidFileType(t FileType) bool {
	switch t {
	case FileTypeQuestionPaper, FileTypeMarkingScheme, FileTypeExaminerReport, FileTypeGradeThresholds:
		return true
	}
	return false
}

// Paper groups the source documents of one exam sitting.
type Paper struct {
	ID          string
	SubjectCode string
	Level       string
	Year        int
	Session     string
	PaperNumber int
}

// SourceDocument is one ingested file belonging to a paper.
// Immutable once ingested.
type SourceDocument struct {
	ID          string
	PaperID     string
	FileType    FileType
	StoragePath string

	// Denormalized paper context carried on every document row so that
	// retrieval enrichment and lookup grouping need no second round-trip.
	SubjectCode string
	Level       string
	Year        int
	Session     string
	PaperNumber int
}

// subjectNames maps syllabus codes to display names for citations.
var subjectNames = map[string]string{
	"9701": "Chemistry",
	"9702": "Physics",
	"9700": "Biology",
	"9709": "Mathematics",
	"9618": "Computer Science",
	"9708": "Economics",
	"9706": "Accounting",
	"8021": "English General Paper",
}

// SubjectName resolves a syllabus code to its display name,
// falling back to the raw code for unknown subjects.
func SubjectName(code string) string {
	if name, ok := subjectNames[code]; ok {
		return name
	}
	return code
}
