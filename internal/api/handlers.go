package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mesikahq/patient-monitoring/internal/auth"
	"github.com/mesikahq/patient-monitoring/internal/group"
	"github.com/mesikahq/patient-monitoring/internal/patient"
	"github.com/mesikahq/patient-monitoring/internal/profile"
	"github.com/mesikahq/patient-monitoring/internal/rbac"
)

type Handler struct {
	auth     auth.Service
	profiles profile.Service
	patients patient.Service
	groups   group.Service
}

func NewHandler(authService auth.Service, profiles profile.Service, patients patient.Service, groups group.Service) *Handler {
	return &Handler{
		auth:     authService,
		profiles: profiles,
		patients: patients,
		groups:   groups,
	}
}

// respondError maps service errors onto HTTP statuses. Denied access always
// presents as 404 so the existence of other principals' records never leaks.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, profile.ErrProfileNotFound),
		errors.Is(err, patient.ErrPatientNotFound),
		errors.Is(err, patient.ErrContactNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, patient.ErrInvalidAssignment),
		errors.Is(err, patient.ErrInvalidPatientData),
		errors.Is(err, patient.ErrInvalidContactData),
		errors.Is(err, profile.ErrLicenseRequired),
		errors.Is(err, profile.ErrLicenseNotAllowed),
		errors.Is(err, profile.ErrDepartmentRequired),
		errors.Is(err, profile.ErrProfileExists),
		errors.Is(err, rbac.ErrUnknownRole):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func principal(c *gin.Context) (rbac.Principal, bool) {
	p, ok := auth.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
	return p, ok
}

// --- auth ---

func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Username string `json:"username" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password required"})
		return
	}

	token, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// Capabilities reports the caller's static capability set and listing
// columns. Display only; Authorize remains the final gate on every request.
func (h *Handler) Capabilities(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	role, ok := p.RoleOf()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"capabilities": rbac.CapabilitySet{}})
		return
	}
	caps, err := rbac.Capabilities(role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"role":         role,
		"capabilities": caps,
		"display_fields": gin.H{
			"profiles": rbac.DisplayFields(rbac.KindProfile, role),
			"patients": rbac.DisplayFields(rbac.KindPatient, role),
			"contacts": rbac.DisplayFields(rbac.KindEmergencyContact, role),
		},
	})
}

// --- profiles ---

func (h *Handler) ListProfiles(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	profiles, err := h.profiles.List(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles})
}

func (h *Handler) GetProfile(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	prof, err := h.profiles.Get(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prof)
}

func (h *Handler) CreateProfile(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var prof profile.Profile
	if err := c.ShouldBindJSON(&prof); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid profile payload"})
		return
	}
	created, err := h.profiles.Create(c.Request.Context(), p, &prof)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var prof profile.Profile
	if err := c.ShouldBindJSON(&prof); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid profile payload"})
		return
	}
	prof.ID = c.Param("id")
	updated, err := h.profiles.Update(c.Request.Context(), p, &prof)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteProfile(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if err := h.profiles.Delete(c.Request.Context(), p, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) ChangeProfileRole(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req struct {
		Role          string `json:"role" binding:"required"`
		LicenseNumber string `json:"license_number"`
		Department    string `json:"department"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role required"})
		return
	}

	role, err := rbac.ParseRole(req.Role)
	if err != nil {
		respondError(c, err)
		return
	}

	updated, err := h.profiles.ChangeRole(c.Request.Context(), p, c.Param("id"), role, req.LicenseNumber, req.Department)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// --- patients ---

func (h *Handler) ListPatients(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	patients, err := h.patients.List(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"patients": patients})
}

func (h *Handler) GetPatient(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	rec, err := h.patients.Get(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) CreatePatient(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var rec patient.Patient
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid patient payload"})
		return
	}
	created, err := h.patients.Create(c.Request.Context(), p, &rec)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) UpdatePatient(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var rec patient.Patient
	if err := c.ShouldBindJSON(&rec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid patient payload"})
		return
	}
	rec.ID = c.Param("id")
	updated, err := h.patients.Update(c.Request.Context(), p, &rec)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeletePatient(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if err := h.patients.Delete(c.Request.Context(), p, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) AssignDoctor(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req struct {
		DoctorProfileID string `json:"doctor_profile_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid assignment payload"})
		return
	}
	updated, err := h.patients.AssignDoctor(c.Request.Context(), p, c.Param("id"), req.DoctorProfileID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) ListUnassignedPatients(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	patients, err := h.patients.ListUnassigned(c.Request.Context(), p)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"patients": patients})
}

// --- emergency contacts ---

func (h *Handler) ListContacts(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	contacts, err := h.patients.ListContacts(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"contacts": contacts})
}

func (h *Handler) AddContact(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var contact patient.EmergencyContact
	if err := c.ShouldBindJSON(&contact); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contact payload"})
		return
	}
	contact.PatientID = c.Param("id")
	created, err := h.patients.AddContact(c.Request.Context(), p, &contact)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (h *Handler) GetContact(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	contact, err := h.patients.GetContact(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, contact)
}

func (h *Handler) UpdateContact(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var contact patient.EmergencyContact
	if err := c.ShouldBindJSON(&contact); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contact payload"})
		return
	}
	contact.ID = c.Param("id")
	updated, err := h.patients.UpdateContact(c.Request.Context(), p, &contact)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteContact(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if err := h.patients.DeleteContact(c.Request.Context(), p, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// --- groups ---

// PrincipalGroups exposes the derived group membership of a principal.
// Restricted to admins and superusers; membership is read-only.
func (h *Handler) PrincipalGroups(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if !h.isAdmin(p) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	groups, err := h.groups.GroupsOf(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (h *Handler) isAdmin(p rbac.Principal) bool {
	if p.IsSuperuser {
		return true
	}
	role, ok := p.RoleOf()
	return ok && role == rbac.RoleAdmin
}
