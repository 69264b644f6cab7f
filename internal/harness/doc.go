// Package harness runs YAML lottery scenarios against a fresh host.
//
// A scenario provisions funded accounts, deploys one lottery and walks a
// list of steps. Accounts are referenced by index; account 0 deploys and is
// therefore the manager unless a deploy step says otherwise.
//
//	name: sends money to the winner
//	accounts: 3
//	funding: "100"
//	steps:
//	  - deploy: {from: 0}
//	  - enter: {from: 1, value: "2"}
//	  - pickWinner: {from: 0, winnerIn: [1], payout: "2"}
//	  - expectPlayers: []
package harness
