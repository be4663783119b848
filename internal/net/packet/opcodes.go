package packet

// Client → server opcodes.
const (
	C_OPCODE_PING     byte = 0x01
	C_OPCODE_MOVE     byte = 0x02
	C_OPCODE_STOP     byte = 0x03
	C_OPCODE_TELEPORT byte = 0x04
	C_OPCODE_LOGOUT   byte = 0x05
	C_OPCODE_ENTER    byte = 0x06
)

// Server → client opcodes.
const (
	S_OPCODE_PONG          byte = 0x81
	S_OPCODE_UPDATE_OBJECT byte = 0x82
	S_OPCODE_TRANSFER      byte = 0x83
	S_OPCODE_LOGOUT_OK     byte = 0x84
	S_OPCODE_ENTER_OK      byte = 0x85
)
