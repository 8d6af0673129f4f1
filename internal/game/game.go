// Package game implements the tic-tac-toe rules engine consumed by the
// state-sync protocol at the applyMove boundary.
package game

// Cell is the content of one board position.
type Cell string

const (
	CellEmpty Cell = "Empty"
	CellX     Cell = "X"
	CellO     Cell = "O"
)

// Player identifies whose turn it is. PlayerNA means the game is over.
type Player string

const (
	PlayerX  Player = "X"
	PlayerO  Player = "O"
	PlayerNA Player = "NA"
)

// Result is the game outcome.
type Result string

const (
	InProgress Result = "InProgress"
	XWins      Result = "XWins"
	OWins      Result = "OWins"
	Draw       Result = "Draw"
)

// BoardSize is the number of cells on the board.
const BoardSize = 9

// State is one complete game position. Invariant: CurrentPlayer is
// PlayerNA exactly when Result is not InProgress, and a non-empty cell
// never changes.
type State struct {
	Board         [BoardSize]Cell `json:"board"`
	CurrentPlayer Player          `json:"currentPlayer"`
	Result        Result          `json:"result"`
}

var winningLines = [8][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// NewState returns the initial position: empty board, X to move.
func NewState() State {
	var s State
	for i := range s.Board {
		s.Board[i] = CellEmpty
	}
	s.CurrentPlayer = PlayerX
	s.Result = InProgress
	return s
}

// ApplyMove places the current player's mark at moveIndex and returns the
// next state. ok is false — and the input state returned unchanged — when
// the game is over, the index is out of range, or the cell is occupied.
func ApplyMove(state State, moveIndex int) (State, bool) {
	if state.Result != InProgress {
		return state, false
	}
	if moveIndex < 0 || moveIndex >= BoardSize {
		return state, false
	}
	if state.Board[moveIndex] != CellEmpty {
		return state, false
	}

	next := state
	next.Board[moveIndex] = playerCell(state.CurrentPlayer)
	next.Result = evaluate(next.Board)
	if next.Result == InProgress {
		next.CurrentPlayer = otherPlayer(state.CurrentPlayer)
	} else {
		next.CurrentPlayer = PlayerNA
	}
	return next, true
}

// evaluate determines the result of a board: a completed line wins,
// a full board without one is a draw.
func evaluate(board [BoardSize]Cell) Result {
	for _, line := range winningLines {
		a, b, c := board[line[0]], board[line[1]], board[line[2]]
		if a != CellEmpty && a == b && b == c {
			if a == CellX {
				return XWins
			}
			return OWins
		}
	}
	for _, cell := range board {
		if cell == CellEmpty {
			return InProgress
		}
	}
	return Draw
}

func playerCell(p Player) Cell {
	if p == PlayerX {
		return CellX
	}
	return CellO
}

func otherPlayer(p Player) Player {
	if p == PlayerX {
		return PlayerO
	}
	return PlayerX
}
