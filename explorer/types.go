package explorer

import (
	"github.com/Arowolokehinde/CharmVault/types"
)

type UtxoStatus struct {
	Confirmed bool  `json:"confirmed"`
	BlockTime int64 `json:"block_time"`
}

type Utxo struct {
	Txid   string     `json:"txid"`
	Vout   uint32     `json:"vout"`
	Amount uint64     `json:"value"`
	Status UtxoStatus `json:"status"`
	Script string     `json:"scriptpubkey,omitempty"`
}

func (e Utxo) ToUtxo(address string) types.Utxo {
	return types.Utxo{
		Outpoint: types.Outpoint{
			Txid: e.Txid,
			VOut: e.Vout,
		},
		Amount:    e.Amount,
		Script:    e.Script,
		Address:   address,
		Confirmed: e.Status.Confirmed,
	}
}
