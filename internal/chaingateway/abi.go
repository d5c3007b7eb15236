package chaingateway

// ABI definitions for the three protected contracts. Trimmed to the
// surface the Chain Gateway actually calls (§4.1); the live contracts carry
// more, but an ABI only needs to describe what this client encodes and
// decodes.

const oracleABIJSON = `[
 {"type":"function","name":"getPrice","stateMutability":"view","inputs":[],"outputs":[
   {"name":"price","type":"uint256"},{"name":"timestamp","type":"uint256"},{"name":"blockNumber","type":"uint256"}]},
 {"type":"function","name":"getTWAP","stateMutability":"view","inputs":[],"outputs":[
   {"name":"twap","type":"uint256"},{"name":"sampleCount","type":"uint256"}]},
 {"type":"function","name":"getPriceHistory","stateMutability":"view","inputs":[{"name":"count","type":"uint256"}],"outputs":[
   {"name":"prices","type":"uint256[]"},{"name":"timestamps","type":"uint256[]"},{"name":"blocks","type":"uint256[]"}]},
 {"type":"function","name":"updatesThisBlock","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"flagManipulation","stateMutability":"nonpayable","inputs":[{"name":"reason","type":"string"}],"outputs":[]}
]`

const ammABIJSON = `[
 {"type":"function","name":"getReserves","stateMutability":"view","inputs":[],"outputs":[
   {"name":"base","type":"uint256"},{"name":"quote","type":"uint256"},{"name":"spotPrice","type":"uint256"}]},
 {"type":"function","name":"getBlockSwapStats","stateMutability":"view","inputs":[],"outputs":[
   {"name":"swaps","type":"uint256"},{"name":"blockNumber","type":"uint256"}]},
 {"type":"function","name":"paused","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"pause","stateMutability":"nonpayable","inputs":[],"outputs":[]},
 {"type":"function","name":"unpause","stateMutability":"nonpayable","inputs":[],"outputs":[]},
 {"type":"event","name":"Swap","inputs":[
   {"name":"sender","type":"address","indexed":true},
   {"name":"amountIn","type":"uint256"},
   {"name":"amountOut","type":"uint256"},
   {"name":"isBaseToQuote","type":"bool"},
   {"name":"effectivePrice","type":"uint256"},
   {"name":"blockNumber","type":"uint256"}],"anonymous":false}
]`

const vaultABIJSON = `[
 {"type":"function","name":"totalCollateral","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"totalLoans","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"paused","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"liquidationsBlocked","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"liquidationsThisBlock","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"pause","stateMutability":"nonpayable","inputs":[{"name":"reason","type":"string"}],"outputs":[]},
 {"type":"function","name":"blockLiquidations","stateMutability":"nonpayable","inputs":[],"outputs":[]},
 {"type":"function","name":"unblockLiquidations","stateMutability":"nonpayable","inputs":[],"outputs":[]},
 {"type":"event","name":"Liquidation","inputs":[
   {"name":"liquidator","type":"address","indexed":true},
   {"name":"user","type":"address","indexed":true},
   {"name":"debtRepaid","type":"uint256"},
   {"name":"collateralSeized","type":"uint256"},
   {"name":"oraclePrice","type":"uint256"},
   {"name":"blockNumber","type":"uint256"},
   {"name":"timestamp","type":"uint256"}],"anonymous":false}
]`
