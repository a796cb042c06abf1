package protocol

// Message type ids. 1xxxx are sent by clients, 2xxxx by the server.
const (
	TypeClientHello       uint16 = 10100
	TypeLogin             uint16 = 10101
	TypeKeepAlive         uint16 = 10108
	TypeMatchmakeRequest  uint16 = 14103
	TypeCancelMatchmaking uint16 = 14106
	TypeTeamCreate        uint16 = 14350
	TypeTeamJoin          uint16 = 14351
	TypeTeamLeave         uint16 = 14353
	TypeTeamSetReady      uint16 = 14355
	TypeTeamToggleBotSeat uint16 = 14359

	TypeServerHello          uint16 = 20100
	TypeLoginFailed          uint16 = 20103
	TypeLoginOk              uint16 = 20104
	TypeKeepAliveServer      uint16 = 20108
	TypeMatchmakingStatus    uint16 = 20405
	TypeMatchmakingCancelled uint16 = 20406
	TypeStartLoading         uint16 = 20559
	TypeBattleEnd            uint16 = 23456
	TypeGameModeUnavailable  uint16 = 24109
	TypeUDPConnectionInfo    uint16 = 24112
	TypeTeamUpdate           uint16 = 24124
	TypeTeamLeft             uint16 = 24125
	TypeTeamGameStarting     uint16 = 24130
)

// LoginFailureCode tells the client why a login was rejected
type LoginFailureCode int32

const (
	LoginFailedAccountNotFound LoginFailureCode = 1
	LoginFailedUpdateRequired  LoginFailureCode = 8
	LoginFailedMaintenance     LoginFailureCode = 10
	LoginFailedBanned          LoginFailureCode = 11
	LoginFailedInvalidToken    LoginFailureCode = 12
)

// TeamLeftReason tells a member why they are no longer in a party
type TeamLeftReason int32

const (
	TeamLeftByChoice  TeamLeftReason = 1
	TeamLeftDisbanded TeamLeftReason = 2
	TeamLeftKicked    TeamLeftReason = 3
)

// Message is a typed protocol payload
type Message interface {
	Type() uint16
	Encode(w *Writer)
	Decode(r *Reader)
}

// ClientHello opens the handshake and carries the client version
type ClientHello struct {
	Protocol   int32
	KeyVersion int32
	Major      int32
	Minor      int32
	Build      int32
	DeviceType int32
}

func (*ClientHello) Type() uint16 { return TypeClientHello }

func (m *ClientHello) Encode(w *Writer) {
	w.WriteInt32(m.Protocol)
	w.WriteInt32(m.KeyVersion)
	w.WriteInt32(m.Major)
	w.WriteInt32(m.Minor)
	w.WriteInt32(m.Build)
	w.WriteInt32(m.DeviceType)
}

func (m *ClientHello) Decode(r *Reader) {
	m.Protocol = r.ReadInt32()
	m.KeyVersion = r.ReadInt32()
	m.Major = r.ReadInt32()
	m.Minor = r.ReadInt32()
	m.Build = r.ReadInt32()
	m.DeviceType = r.ReadInt32()
}

// ServerHello answers ClientHello with the per-connection session key
type ServerHello struct {
	SessionKey []byte
}

func (*ServerHello) Type() uint16 { return TypeServerHello }

func (m *ServerHello) Encode(w *Writer) { w.WriteBytes(m.SessionKey) }

func (m *ServerHello) Decode(r *Reader) { m.SessionKey = r.ReadBytes() }

// Login authenticates an account. AccountID zero asks for a new account.
type Login struct {
	AccountID int64
	Token     string
	Major     int32
	Minor     int32
	Build     int32
	DeviceID  string
}

func (*Login) Type() uint16 { return TypeLogin }

func (m *Login) Encode(w *Writer) {
	w.WriteInt64(m.AccountID)
	w.WriteString(m.Token)
	w.WriteInt32(m.Major)
	w.WriteInt32(m.Minor)
	w.WriteInt32(m.Build)
	w.WriteString(m.DeviceID)
}

func (m *Login) Decode(r *Reader) {
	m.AccountID = r.ReadInt64()
	m.Token = r.ReadString()
	m.Major = r.ReadInt32()
	m.Minor = r.ReadInt32()
	m.Build = r.ReadInt32()
	m.DeviceID = r.ReadString()
}

type LoginOk struct {
	AccountID int64
	Token     string
	Name      string
	Trophies  int32
	Major     int32
	Build     int32
}

func (*LoginOk) Type() uint16 { return TypeLoginOk }

func (m *LoginOk) Encode(w *Writer) {
	w.WriteInt64(m.AccountID)
	w.WriteString(m.Token)
	w.WriteString(m.Name)
	w.WriteInt32(m.Trophies)
	w.WriteInt32(m.Major)
	w.WriteInt32(m.Build)
}

func (m *LoginOk) Decode(r *Reader) {
	m.AccountID = r.ReadInt64()
	m.Token = r.ReadString()
	m.Name = r.ReadString()
	m.Trophies = r.ReadInt32()
	m.Major = r.ReadInt32()
	m.Build = r.ReadInt32()
}

type LoginFailed struct {
	Code   LoginFailureCode
	Reason string
}

func (*LoginFailed) Type() uint16 { return TypeLoginFailed }

func (m *LoginFailed) Encode(w *Writer) {
	w.WriteInt32(int32(m.Code))
	w.WriteString(m.Reason)
}

func (m *LoginFailed) Decode(r *Reader) {
	m.Code = LoginFailureCode(r.ReadInt32())
	m.Reason = r.ReadString()
}

type KeepAlive struct{}

func (*KeepAlive) Type() uint16 { return TypeKeepAlive }
func (*KeepAlive) Encode(*Writer) {}
func (*KeepAlive) Decode(*Reader) {}

type KeepAliveServer struct{}

func (*KeepAliveServer) Type() uint16 { return TypeKeepAliveServer }
func (*KeepAliveServer) Encode(*Writer) {}
func (*KeepAliveServer) Decode(*Reader) {}

// MatchmakeRequest asks to queue for the event in EventSlot
type MatchmakeRequest struct {
	EventSlot   int32
	CharacterID int32
}

func (*MatchmakeRequest) Type() uint16 { return TypeMatchmakeRequest }

func (m *MatchmakeRequest) Encode(w *Writer) {
	w.WriteInt32(m.EventSlot)
	w.WriteInt32(m.CharacterID)
}

func (m *MatchmakeRequest) Decode(r *Reader) {
	m.EventSlot = r.ReadInt32()
	m.CharacterID = r.ReadInt32()
}

type CancelMatchmaking struct{}

func (*CancelMatchmaking) Type() uint16 { return TypeCancelMatchmaking }
func (*CancelMatchmaking) Encode(*Writer) {}
func (*CancelMatchmaking) Decode(*Reader) {}

// MatchmakingStatus reports wait time and queue depth to a queued client
type MatchmakingStatus struct {
	ElapsedSeconds   int32
	RemainingSeconds int32
	Found            int32
	Required         int32
}

func (*MatchmakingStatus) Type() uint16 { return TypeMatchmakingStatus }

func (m *MatchmakingStatus) Encode(w *Writer) {
	w.WriteInt32(m.ElapsedSeconds)
	w.WriteInt32(m.RemainingSeconds)
	w.WriteInt32(m.Found)
	w.WriteInt32(m.Required)
}

func (m *MatchmakingStatus) Decode(r *Reader) {
	m.ElapsedSeconds = r.ReadInt32()
	m.RemainingSeconds = r.ReadInt32()
	m.Found = r.ReadInt32()
	m.Required = r.ReadInt32()
}

type MatchmakingCancelled struct{}

func (*MatchmakingCancelled) Type() uint16 { return TypeMatchmakingCancelled }
func (*MatchmakingCancelled) Encode(*Writer) {}
func (*MatchmakingCancelled) Decode(*Reader) {}

// RosterEntry is one seat in a StartLoading roster
type RosterEntry struct {
	PlayerIndex int32
	TeamIndex   int32
	AccountID   int64
	IsBot       bool
	CharacterID int32
	Name        string
}

func (e *RosterEntry) encode(w *Writer) {
	w.WriteInt32(e.PlayerIndex)
	w.WriteInt32(e.TeamIndex)
	w.WriteInt64(e.AccountID)
	w.WriteBool(e.IsBot)
	w.WriteInt32(e.CharacterID)
	w.WriteString(e.Name)
}

func (e *RosterEntry) decode(r *Reader) {
	e.PlayerIndex = r.ReadInt32()
	e.TeamIndex = r.ReadInt32()
	e.AccountID = r.ReadInt64()
	e.IsBot = r.ReadBool()
	e.CharacterID = r.ReadInt32()
	e.Name = r.ReadString()
}

// StartLoading tells a client its battle is starting
type StartLoading struct {
	BattleID    string
	LocationID  int32
	PlayerIndex int32
	TeamIndex   int32
	Players     []RosterEntry
}

func (*StartLoading) Type() uint16 { return TypeStartLoading }

func (m *StartLoading) Encode(w *Writer) {
	w.WriteString(m.BattleID)
	w.WriteInt32(m.LocationID)
	w.WriteInt32(m.PlayerIndex)
	w.WriteInt32(m.TeamIndex)
	w.WriteInt32(int32(len(m.Players)))
	for i := range m.Players {
		m.Players[i].encode(w)
	}
}

func (m *StartLoading) Decode(r *Reader) {
	m.BattleID = r.ReadString()
	m.LocationID = r.ReadInt32()
	m.PlayerIndex = r.ReadInt32()
	m.TeamIndex = r.ReadInt32()
	n := int(r.ReadInt32())
	if n < 0 || n > 64 {
		n = 0
	}
	m.Players = make([]RosterEntry, n)
	for i := range m.Players {
		m.Players[i].decode(r)
	}
}

// UDPConnectionInfo hands the client its battle transport endpoint and session handle
type UDPConnectionInfo struct {
	Port      int32
	Host      string
	SessionID []byte
}

func (*UDPConnectionInfo) Type() uint16 { return TypeUDPConnectionInfo }

func (m *UDPConnectionInfo) Encode(w *Writer) {
	w.WriteInt32(m.Port)
	w.WriteString(m.Host)
	w.WriteBytes(m.SessionID)
}

func (m *UDPConnectionInfo) Decode(r *Reader) {
	m.Port = r.ReadInt32()
	m.Host = r.ReadString()
	m.SessionID = r.ReadBytes()
}

type BattleEnd struct {
	BattleID string
	Rank     int32
}

func (*BattleEnd) Type() uint16 { return TypeBattleEnd }

func (m *BattleEnd) Encode(w *Writer) {
	w.WriteString(m.BattleID)
	w.WriteInt32(m.Rank)
}

func (m *BattleEnd) Decode(r *Reader) {
	m.BattleID = r.ReadString()
	m.Rank = r.ReadInt32()
}

type GameModeUnavailable struct {
	LocationID int32
}

func (*GameModeUnavailable) Type() uint16 { return TypeGameModeUnavailable }

func (m *GameModeUnavailable) Encode(w *Writer) { w.WriteInt32(m.LocationID) }

func (m *GameModeUnavailable) Decode(r *Reader) { m.LocationID = r.ReadInt32() }

// TeamCreate starts a new party for the event in EventSlot
type TeamCreate struct {
	EventSlot  int32
	BattleType int32
}

func (*TeamCreate) Type() uint16 { return TypeTeamCreate }

func (m *TeamCreate) Encode(w *Writer) {
	w.WriteInt32(m.EventSlot)
	w.WriteInt32(m.BattleType)
}

func (m *TeamCreate) Decode(r *Reader) {
	m.EventSlot = r.ReadInt32()
	m.BattleType = r.ReadInt32()
}

type TeamJoin struct {
	TeamID    int64
	TeamIndex int32
}

func (*TeamJoin) Type() uint16 { return TypeTeamJoin }

func (m *TeamJoin) Encode(w *Writer) {
	w.WriteInt64(m.TeamID)
	w.WriteInt32(m.TeamIndex)
}

func (m *TeamJoin) Decode(r *Reader) {
	m.TeamID = r.ReadInt64()
	m.TeamIndex = r.ReadInt32()
}

type TeamLeave struct{}

func (*TeamLeave) Type() uint16 { return TypeTeamLeave }
func (*TeamLeave) Encode(*Writer) {}
func (*TeamLeave) Decode(*Reader) {}

type TeamSetReady struct {
	Ready bool
}

func (*TeamSetReady) Type() uint16 { return TypeTeamSetReady }

func (m *TeamSetReady) Encode(w *Writer) { w.WriteBool(m.Ready) }

func (m *TeamSetReady) Decode(r *Reader) { m.Ready = r.ReadBool() }

// TeamToggleBotSeat enables or disables bot fill for one seat of a friendly party
type TeamToggleBotSeat struct {
	TeamIndex int32
	Position  int32
}

func (*TeamToggleBotSeat) Type() uint16 { return TypeTeamToggleBotSeat }

func (m *TeamToggleBotSeat) Encode(w *Writer) {
	w.WriteInt32(m.TeamIndex)
	w.WriteInt32(m.Position)
}

func (m *TeamToggleBotSeat) Decode(r *Reader) {
	m.TeamIndex = r.ReadInt32()
	m.Position = r.ReadInt32()
}

// TeamMemberInfo is one member in a TeamUpdate
type TeamMemberInfo struct {
	AccountID   int64
	Name        string
	CharacterID int32
	IsReady     bool
	TeamIndex   int32
}

// TeamUpdate is broadcast to every member whenever the party changes
type TeamUpdate struct {
	TeamID     int64
	EventSlot  int32
	BattleType int32
	Searching  bool
	Members    []TeamMemberInfo
}

func (*TeamUpdate) Type() uint16 { return TypeTeamUpdate }

func (m *TeamUpdate) Encode(w *Writer) {
	w.WriteInt64(m.TeamID)
	w.WriteInt32(m.EventSlot)
	w.WriteInt32(m.BattleType)
	w.WriteBool(m.Searching)
	w.WriteInt32(int32(len(m.Members)))
	for _, mem := range m.Members {
		w.WriteInt64(mem.AccountID)
		w.WriteString(mem.Name)
		w.WriteInt32(mem.CharacterID)
		w.WriteBool(mem.IsReady)
		w.WriteInt32(mem.TeamIndex)
	}
}

func (m *TeamUpdate) Decode(r *Reader) {
	m.TeamID = r.ReadInt64()
	m.EventSlot = r.ReadInt32()
	m.BattleType = r.ReadInt32()
	m.Searching = r.ReadBool()
	n := int(r.ReadInt32())
	if n < 0 || n > 64 {
		n = 0
	}
	m.Members = make([]TeamMemberInfo, n)
	for i := range m.Members {
		m.Members[i].AccountID = r.ReadInt64()
		m.Members[i].Name = r.ReadString()
		m.Members[i].CharacterID = r.ReadInt32()
		m.Members[i].IsReady = r.ReadBool()
		m.Members[i].TeamIndex = r.ReadInt32()
	}
}

type TeamLeft struct {
	TeamID int64
	Reason TeamLeftReason
}

func (*TeamLeft) Type() uint16 { return TypeTeamLeft }

func (m *TeamLeft) Encode(w *Writer) {
	w.WriteInt64(m.TeamID)
	w.WriteInt32(int32(m.Reason))
}

func (m *TeamLeft) Decode(r *Reader) {
	m.TeamID = r.ReadInt64()
	m.Reason = TeamLeftReason(r.ReadInt32())
}

// TeamGameStarting precedes a party's matchmaking submission
type TeamGameStarting struct {
	TeamID     int64
	LocationID int32
}

func (*TeamGameStarting) Type() uint16 { return TypeTeamGameStarting }

func (m *TeamGameStarting) Encode(w *Writer) {
	w.WriteInt64(m.TeamID)
	w.WriteInt32(m.LocationID)
}

func (m *TeamGameStarting) Decode(r *Reader) {
	m.TeamID = r.ReadInt64()
	m.LocationID = r.ReadInt32()
}
