package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/uptrace/bun/driver/pgdriver"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 6

var validRoles = map[string]bool{"normal": true, "artist": true}

type userResponse struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	ProfilePic string `json:"profile_pic,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func toUserResponse(u User) userResponse {
	return userResponse{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Role:       u.Role,
		ProfilePic: u.ProfilePic,
		CreatedAt:  u.CreatedAt.Format(time.RFC1123),
	}
}

// verificationCode returns the 6-digit code mailed on signup and on login
// while unverified.
func verificationCode() string {
	return fmt.Sprintf("%06d", rand.IntN(1000000))
}

func (a *API) signup(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}
	r.Body.Close()

	if len(body.Password) < minPasswordLen {
		a.respondError(w, http.StatusBadRequest, errors.New("password too short"),
			fmt.Sprintf("Password must be at least %d characters", minPasswordLen))
		return
	}
	if !validRoles[body.Role] {
		a.respondError(w, http.StatusBadRequest, errors.New("invalid role"), "Role must be normal or artist")
		return
	}
	if body.Username == "" || body.Email == "" {
		a.respondError(w, http.StatusBadRequest, errors.New("missing fields"), "Username and email are required")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not create user")
		return
	}

	code := verificationCode()
	user, err := a.DB.InsertUser(r.Context(), User{
		Username:         body.Username,
		Email:            body.Email,
		Role:             body.Role,
		PasswordHash:     string(hash),
		VerificationCode: code,
	})
	if err != nil {
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
			a.respondError(w, http.StatusConflict, err, "Username or email is already registered")
			return
		}
		a.respondError(w, http.StatusInternalServerError, err, "Could not create user")
		return
	}

	if err := a.Mailer.SendVerificationCode(r.Context(), user.Email, code); err != nil {
		a.Logger.Error("Could not send verification mail", "email", user.Email, "error", err.Error())
	}

	a.respond(w, http.StatusCreated, toUserResponse(user))
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	type response struct {
		userResponse
		EmailVerified bool   `json:"email_verified"`
		Token         string `json:"token,omitempty"`
	}

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}
	r.Body.Close()

	user, err := a.DB.GetUserByEmail(r.Context(), body.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			a.respondError(w, http.StatusBadRequest, err, "Invalid credentials")
			return
		}
		a.respondError(w, http.StatusInternalServerError, err, "Could not log in")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Invalid credentials")
		return
	}

	if !user.Verified {
		// Re-issue a code; the client is sent to the verification step.
		code := verificationCode()
		if err := a.DB.SetVerificationCode(r.Context(), user.ID, code); err != nil {
			a.respondError(w, http.StatusInternalServerError, err, "Could not log in")
			return
		}
		if err := a.Mailer.SendVerificationCode(r.Context(), user.Email, code); err != nil {
			a.Logger.Error("Could not send verification mail", "email", user.Email, "error", err.Error())
		}
		a.respond(w, http.StatusOK, response{userResponse: toUserResponse(user), EmailVerified: false})
		return
	}

	tok, expiresAt, err := a.Tokens.Issue(user.ID)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not log in")
		return
	}
	a.setAuthCookie(w, tok, expiresAt)
	a.respond(w, http.StatusOK, response{userResponse: toUserResponse(user), EmailVerified: true, Token: tok})
}

func (a *API) verifyEmail(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	type response struct {
		Verified bool   `json:"verified"`
		Token    string `json:"token,omitempty"`
	}

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}
	r.Body.Close()

	user, err := a.DB.GetUserByEmail(r.Context(), body.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			a.respondError(w, http.StatusBadRequest, err, "Invalid or expired code")
			return
		}
		a.respondError(w, http.StatusInternalServerError, err, "Could not verify email")
		return
	}
	if user.Verified {
		a.respond(w, http.StatusOK, response{Verified: true})
		return
	}
	if body.Code == "" || user.VerificationCode != body.Code {
		a.respondError(w, http.StatusNotFound, errors.New("code mismatch"), "Incorrect code")
		return
	}

	if err := a.DB.MarkUserVerified(r.Context(), user.ID); err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not verify email")
		return
	}
	if err := a.Mailer.SendWelcome(r.Context(), user.Email); err != nil {
		a.Logger.Error("Could not send welcome mail", "email", user.Email, "error", err.Error())
	}

	tok, expiresAt, err := a.Tokens.Issue(user.ID)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not verify email")
		return
	}
	a.setAuthCookie(w, tok, expiresAt)
	a.respond(w, http.StatusOK, response{Verified: true, Token: tok})
}

// changePassword rotates the caller's password after checking the current
// one.
func (a *API) changePassword(w http.ResponseWriter, r *http.Request) {
	type request struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	type response struct {
		Message string `json:"message"`
	}

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}
	r.Body.Close()

	if len(body.NewPassword) < minPasswordLen {
		a.respondError(w, http.StatusBadRequest, errors.New("password too short"),
			fmt.Sprintf("Password must be at least %d characters", minPasswordLen))
		return
	}

	user, err := a.DB.GetUserByID(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		a.notFound(w, err, "User not found")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.OldPassword)); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Incorrect password")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(body.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not change password")
		return
	}
	if err := a.DB.SetPassword(r.Context(), user.ID, string(hash)); err != nil {
		a.respondError(w, http.StatusInternalServerError, err, "Could not change password")
		return
	}
	a.respond(w, http.StatusOK, response{Message: "Password changed"})
}

// sendOTP starts an email change: a fresh code is stored on the account and
// mailed to the address the caller wants to switch to.
func (a *API) sendOTP(w http.ResponseWriter, r *http.Request) {
	type request struct {
		NewEmail string `json:"new_email"`
	}
	type response struct {
		Sent bool `json:"sent"`
	}

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}
	r.Body.Close()

	if body.NewEmail == "" {
		a.respondError(w, http.StatusBadRequest, errors.New("missing email"), "Email is required")
		return
	}

	code := verificationCode()
	if err := a.DB.SetVerificationCode(r.Context(), userIDFrom(r.Context()), code); err != nil {
		a.notFound(w, err, "User not found")
		return
	}
	if err := a.Mailer.SendVerificationCode(r.Context(), body.NewEmail, code); err != nil {
		a.Logger.Error("Could not send verification mail", "email", body.NewEmail, "error", err.Error())
	}
	a.respond(w, http.StatusOK, response{Sent: true})
}

// verifyOTP completes an email change started by sendOTP.
func (a *API) verifyOTP(w http.ResponseWriter, r *http.Request) {
	type request struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	type response struct {
		Updated bool `json:"updated"`
	}

	var body request
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		a.respondError(w, http.StatusBadRequest, err, "Could not decode request body")
		return
	}
	r.Body.Close()

	user, err := a.DB.GetUserByID(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		a.notFound(w, err, "User not found")
		return
	}
	if user.VerificationCode == "" {
		a.respondError(w, http.StatusBadRequest, errors.New("no pending code"), "OTP expired")
		return
	}
	if body.OTP == "" || user.VerificationCode != body.OTP {
		a.respondError(w, http.StatusBadRequest, errors.New("code mismatch"), "OTP invalid")
		return
	}

	if err := a.DB.SetEmail(r.Context(), user.ID, body.Email); err != nil {
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.IntegrityViolation() {
			a.respondError(w, http.StatusConflict, err, "Email is already registered")
			return
		}
		a.respondError(w, http.StatusInternalServerError, err, "Could not update email")
		return
	}
	a.respond(w, http.StatusOK, response{Updated: true})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Message string `json:"message"`
	}
	a.clearAuthCookie(w)
	a.respond(w, http.StatusOK, response{Message: "Logged out"})
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	user, err := a.DB.GetUserByID(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		a.notFound(w, err, "User not found")
		return
	}
	a.respond(w, http.StatusOK, toUserResponse(user))
}
