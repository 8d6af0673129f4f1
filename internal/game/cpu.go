package game

import "math/rand/v2"

// Difficulty selects the CPU strategy.
type Difficulty string

const (
	Easy   Difficulty = "Easy"
	Medium Difficulty = "Medium"
	Hard   Difficulty = "Hard"
)

// MoveNA is returned when no move is possible.
const MoveNA = -1

// ComputeCPUMove picks a move for the current player. Easy plays at
// random, Medium takes an immediate win when one exists, Hard runs a full
// minimax (the game tree is small enough that depth limiting is not
// needed).
func ComputeCPUMove(state State, difficulty Difficulty) int {
	if state.Result != InProgress {
		return MoveNA
	}

	switch difficulty {
	case Easy:
		return randomMove(state.Board)
	case Medium:
		if idx := findWinningMove(state.Board, playerCell(state.CurrentPlayer)); idx != MoveNA {
			return idx
		}
		return randomMove(state.Board)
	case Hard:
		return bestMove(state)
	}
	return MoveNA
}

func randomMove(board [BoardSize]Cell) int {
	var empty []int
	for i, cell := range board {
		if cell == CellEmpty {
			empty = append(empty, i)
		}
	}
	if len(empty) == 0 {
		return MoveNA
	}
	return empty[rand.IntN(len(empty))]
}

// findWinningMove returns an index completing a line for cell, or MoveNA.
func findWinningMove(board [BoardSize]Cell, cell Cell) int {
	for i := range board {
		if board[i] != CellEmpty {
			continue
		}
		trial := board
		trial[i] = cell
		result := evaluate(trial)
		if (cell == CellX && result == XWins) || (cell == CellO && result == OWins) {
			return i
		}
	}
	return MoveNA
}

func bestMove(state State) int {
	cpu := state.CurrentPlayer
	bestScore := -2
	best := MoveNA

	for i := range state.Board {
		if state.Board[i] != CellEmpty {
			continue
		}
		board := state.Board
		board[i] = playerCell(cpu)
		score := minimax(board, otherPlayer(cpu), cpu)
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	return best
}

func minimax(board [BoardSize]Cell, player, cpu Player) int {
	switch evaluate(board) {
	case XWins:
		if cpu == PlayerX {
			return 1
		}
		return -1
	case OWins:
		if cpu == PlayerO {
			return 1
		}
		return -1
	case Draw:
		return 0
	}

	maximizing := player == cpu
	best := 2
	if maximizing {
		best = -2
	}

	for i := range board {
		if board[i] != CellEmpty {
			continue
		}
		next := board
		next[i] = playerCell(player)
		score := minimax(next, otherPlayer(player), cpu)
		if maximizing && score > best {
			best = score
		}
		if !maximizing && score < best {
			best = score
		}
	}
	return best
}
