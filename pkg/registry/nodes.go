package registry

import (
	"log/slog"

	"github.com/flowlinehq/flowline/pkg/nodes/agentcall"
	"github.com/flowlinehq/flowline/pkg/nodes/condition"
	"github.com/flowlinehq/flowline/pkg/nodes/createticket"
	"github.com/flowlinehq/flowline/pkg/nodes/httprequest"
	lognode "github.com/flowlinehq/flowline/pkg/nodes/log"
	"github.com/flowlinehq/flowline/pkg/nodes/sendemail"
	"github.com/flowlinehq/flowline/pkg/nodes/updaterecord"
	"github.com/flowlinehq/flowline/pkg/nodes/waitduration"
	"github.com/flowlinehq/flowline/pkg/nodes/waitevent"
	"github.com/flowlinehq/flowline/pkg/protocol"
)

// Collaborators carries the platform modules the action nodes call into.
// Nil members are allowed; the corresponding node types then reject their
// configuration at creation time.
type Collaborators struct {
	Mailer   protocol.Mailer
	Ticketer protocol.Ticketer
	Records  protocol.RecordStore
	Agents   protocol.AgentRunner
}

// RegisterDefaultNodes registers the built-in node types.
func RegisterDefaultNodes(r *Registry, logger *slog.Logger, c Collaborators) {
	r.RegisterNode(condition.NewNodeFactory())
	r.RegisterNode(waitduration.NewNodeFactory())
	r.RegisterNode(waitevent.NewNodeFactory())
	r.RegisterNode(httprequest.NewNodeFactory())
	r.RegisterNode(lognode.NewNodeFactory(logger))
	r.RegisterNode(sendemail.NewNodeFactory(c.Mailer, logger))
	r.RegisterNode(createticket.NewNodeFactory(c.Ticketer, logger))
	r.RegisterNode(updaterecord.NewNodeFactory(c.Records, logger))
	r.RegisterNode(agentcall.NewNodeFactory(c.Agents, logger))
}
