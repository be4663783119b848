package handler

import (
	"fmt"
	"time"

	"github.com/l1jgo/worldcore/internal/net/packet"
)

// HandleLogout processes C_LOGOUT. The body leaves at this tick's flush;
// the session is closed after the acknowledgement is queued.
func HandleLogout(c *Context, _ *packet.Reader) {
	body := c.O.Body
	c.Deps.Log.Info(fmt.Sprintf("玩家登出  session=%d  guid=%s", c.O.Session.ID(), body.GUID))
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_LOGOUT_OK)
	_ = c.O.Session.Send(w.Bytes())
	c.P.Remove(body)
	if cl, ok := c.O.Session.(interface{ Close() }); ok {
		cl.Close()
	}
}

// HandlePing processes C_PING: [u32 client stamp]. The reply echoes the
// stamp with the partition clock in milliseconds.
func HandlePing(c *Context, r *packet.Reader) {
	stamp := r.ReadDU()
	if r.Err() != nil {
		return
	}
	c.O.LastPing = time.Now()
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_PONG)
	w.WriteDU(stamp)
	w.WriteDU(uint32(c.P.Elapsed().Milliseconds()))
	_ = c.O.Session.Send(w.Bytes())
}
