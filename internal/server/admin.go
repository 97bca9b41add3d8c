package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/taktline/takt/internal/auth"
	mng "github.com/taktline/takt/internal/manager"
)

// EditTarget selects which variant of an admin edit request is populated.
type EditTarget string

const (
	EditProcess       EditTarget = "process"
	EditJustification EditTarget = "justification"
	EditStage         EditTarget = "stage"
	EditUser          EditTarget = "user"
)

// EditRequest is a tagged union: exactly one variant matching Target must be
// set; each carries its own typed field set.
type EditRequest struct {
	Target        EditTarget         `json:"target"`
	Process       *ProcessEditReq    `json:"process,omitempty"`
	Justification *JustificationEdit `json:"justification,omitempty"`
	Stage         *StageEdit         `json:"stage,omitempty"`
	User          *UserEdit          `json:"user,omitempty"`
}

type ProcessEditReq struct {
	ID string `json:"id"`
	mng.ProcessEdit
}

type JustificationEdit struct {
	Category string `json:"category"`
	Text     string `json:"text"`
	Remove   bool   `json:"remove,omitempty"`
}

type StageEdit struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

type UserEdit struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	Credential string    `json:"credential"`
	Password   string    `json:"password,omitempty"`
	Role       auth.Role `json:"role"`
	Active     bool      `json:"active"`
}

func (r *Router) handleAdminEdit(c *gin.Context) {
	var req EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	switch req.Target {
	case EditProcess:
		if req.Process == nil || req.Process.ID == "" {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "process edit requires process.id"})
			return
		}
		if err := r.mgr.Edit(c.Request.Context(), req.Process.ID, req.Process.ProcessEdit, actorFrom(c)); err != nil {
			writeError(c, err)
			return
		}
	case EditJustification:
		if req.Justification == nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "justification edit requires justification body"})
			return
		}
		if req.Justification.Remove {
			r.cat.RemoveText(req.Justification.Category, req.Justification.Text)
		} else if err := r.cat.AddText(req.Justification.Category, req.Justification.Text); err != nil {
			writeError(c, err)
			return
		}
	case EditStage:
		if req.Stage == nil {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "stage edit requires stage body"})
			return
		}
		if err := r.cat.PutStage(req.Stage.Code, req.Stage.Label); err != nil {
			writeError(c, err)
			return
		}
	case EditUser:
		if req.User == nil || req.User.ID == "" || req.User.Credential == "" {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "user edit requires user.id and user.credential"})
			return
		}
		u := auth.User{
			ID:         req.User.ID,
			Username:   req.User.Username,
			Credential: req.User.Credential,
			Role:       req.User.Role,
			Active:     req.User.Active,
		}
		if req.User.Password != "" {
			hash, err := auth.HashPassword(req.User.Password)
			if err != nil {
				writeError(c, err)
				return
			}
			u.PasswordHash = hash
		} else if prev, err := r.roster.Get(u.ID); err == nil {
			u.PasswordHash = prev.PasswordHash
		}
		r.roster.Put(u)
	default:
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "unknown edit target"})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
