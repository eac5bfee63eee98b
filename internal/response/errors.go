package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrInvalidTeacherCode ErrCode = "INVALID_TEACHER_CODE"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrTeacherAccessOnly ErrCode = "TEACHER_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrConflict        ErrCode = "CONFLICT"
	ErrActionForbidden ErrCode = "ACTION_FORBIDDEN"

	// ─── Exam-specific ─────────────────────────────────────────────────
	ErrExamNotAvailable ErrCode = "EXAM_NOT_AVAILABLE"
	ErrExamNotTargeted  ErrCode = "EXAM_NOT_TARGETED"
	ErrExamAlreadyTaken ErrCode = "EXAM_ALREADY_TAKEN"
	ErrNoQuestions      ErrCode = "NO_QUESTIONS"
	ErrSessionFinished  ErrCode = "SESSION_FINISHED"

	// ─── Generator ─────────────────────────────────────────────────────
	ErrAIUnavailable ErrCode = "AI_UNAVAILABLE"
	ErrAIBadOutput   ErrCode = "AI_BAD_OUTPUT"

	// ─── Storage ───────────────────────────────────────────────────────
	ErrStorageUnavailable ErrCode = "STORAGE_UNAVAILABLE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "NIS tidak ditemukan. Hubungi guru Anda."
	case ErrInvalidTeacherCode:
		return "Kode akses guru salah."
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi telah kedaluwarsa."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrTeacherAccessOnly:
		return "Sumber daya ini terbatas untuk guru."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrConflict:
		return "Sumber daya sudah ada."
	case ErrActionForbidden:
		return "Tindakan ini tidak diperbolehkan."

	// ─── Exam-specific ─────────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "Ujian ini saat ini tidak tersedia."
	case ErrExamNotTargeted:
		return "Ujian ini tidak ditujukan untuk kelas Anda."
	case ErrExamAlreadyTaken:
		return "Anda sudah mengerjakan ujian ini."
	case ErrNoQuestions:
		return "Ujian ini tidak memiliki pertanyaan."
	case ErrSessionFinished:
		return "Sesi ujian telah berakhir."

	// ─── Generator ─────────────────────────────────────────────────────
	case ErrAIUnavailable:
		return "Layanan AI sedang tidak tersedia."
	case ErrAIBadOutput:
		return "Gagal membuat soal. Coba lagi."

	// ─── Storage ───────────────────────────────────────────────────────
	case ErrStorageUnavailable:
		return "Penyimpanan cloud tidak tersedia. Data disimpan secara lokal."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
