package backend

// Callback is the table of entry points the library invokes. Arguments are
// borrowed for the duration of the call; a Message that must outlive the call
// has to be acquired with Acquire.
type Callback interface {
	OnConnect(conn Connection)
	OnSafeConnect(conn Connection)
	OnRegister(conn Connection)
	OnClose(conn Connection)
	OnSent(conn Connection, handle int32, queued int32)
	OnReceivedBiz(conn Connection, handle int32, content []byte, result int32)
	OnReceivedBizEx(conn Connection, handle int32, ret *RetData, content []byte, result int32)
	OnReceivedBizMsg(conn Connection, handle int32, msg Message)
}

// NopCallback implements every entry point as a no-op. Embed it and override
// the entries that do work.
type NopCallback struct{}

func (NopCallback) OnConnect(Connection)                                       {}
func (NopCallback) OnSafeConnect(Connection)                                   {}
func (NopCallback) OnRegister(Connection)                                      {}
func (NopCallback) OnClose(Connection)                                         {}
func (NopCallback) OnSent(Connection, int32, int32)                            {}
func (NopCallback) OnReceivedBiz(Connection, int32, []byte, int32)             {}
func (NopCallback) OnReceivedBizEx(Connection, int32, *RetData, []byte, int32) {}
func (NopCallback) OnReceivedBizMsg(Connection, int32, Message)                {}
