package membership

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	errorinfo "github.com/andydunstall/swim/pkg/status"
	"github.com/andydunstall/swim/pkg/swim"
	"github.com/andydunstall/swim/server/status"
)

// MemberStatus is the known state of a member as seen by the local node.
type MemberStatus struct {
	Addr     string    `json:"addr" yaml:"addr"`
	Clock    uint32    `json:"clock" yaml:"clock"`
	LastSeen time.Time `json:"last_seen" yaml:"last_seen"`
	Live     bool      `json:"live" yaml:"live"`
	Local    bool      `json:"local" yaml:"local"`
}

// Status exposes the membership table of the local node.
type Status struct {
	node *swim.Node
}

func NewStatus(node *swim.Node) *Status {
	return &Status{
		node: node,
	}
}

func (s *Status) Register(group *gin.RouterGroup) {
	group.GET("/members", s.listMembersRoute)
	group.GET("/members/:addr", s.getMemberRoute)
}

func (s *Status) listMembersRoute(c *gin.Context) {
	members := s.node.Members()

	statuses := make([]MemberStatus, 0, len(members))
	for _, m := range members {
		statuses = append(statuses, s.memberStatus(m))
	}
	c.JSON(http.StatusOK, statuses)
}

func (s *Status) getMemberRoute(c *gin.Context) {
	addr, err := swim.ParseAddress(c.Param("addr"))
	if err != nil {
		c.JSON(
			http.StatusBadRequest,
			errorinfo.NewErrorInfo(http.StatusBadRequest, err.Error()),
		)
		return
	}

	m, ok := s.node.Member(addr)
	if !ok {
		c.JSON(
			http.StatusNotFound,
			errorinfo.NewErrorInfo(http.StatusNotFound, "member not found"),
		)
		return
	}
	c.JSON(http.StatusOK, s.memberStatus(m))
}

func (s *Status) memberStatus(m swim.Member) MemberStatus {
	local := m.Addr == s.node.Addr()
	return MemberStatus{
		Addr:     m.Addr.String(),
		Clock:    m.Clock,
		LastSeen: m.LastSeen,
		Live:     local || !s.node.IsStale(m),
		Local:    local,
	}
}

var _ status.Handler = &Status{}
