package model

// Student is a learner identified by NIS (nomor induk siswa).
type Student struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	NIS   string `json:"nis"`
	Class string `json:"class,omitempty"`
}

// StudentID derives the stable student identity from a NIS.
func StudentID(nis string) string {
	return "S-" + nis
}

// StudentInput is the payload for adding or editing a student.
type StudentInput struct {
	Name  string `json:"name" binding:"required,min=1,max=255"`
	NIS   string `json:"nis" binding:"required,max=32"`
	Class string `json:"class" binding:"omitempty,max=64"`
}

// BulkStudentRequest imports many students at once.
type BulkStudentRequest struct {
	Students []StudentInput `json:"students" binding:"required,min=1,max=2000,dive"`
}

// StudentLoginRequest is the payload for student login.
type StudentLoginRequest struct {
	NIS string `json:"nis" binding:"required,max=32"`
}

// TeacherLoginRequest is the payload for teacher login.
type TeacherLoginRequest struct {
	Token string `json:"token" binding:"required,max=256"`
}
