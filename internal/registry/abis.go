package registry

// Single-function ABI fragments. Each on-chain operation is declared on its
// own so a codec built from one fragment cannot pack any other method.
const (
	ERC20BalanceOfABI = `[
		{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
	]`

	ERC20AllowanceABI = `[
		{"name":"allowance","type":"function","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
	]`

	ERC20ApproveABI = `[
		{"name":"approve","type":"function","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
	]`

	ERC20TransferABI = `[
		{"name":"transfer","type":"function","stateMutability":"nonpayable","inputs":[{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
	]`

	ERC20TransferFromABI = `[
		{"name":"transferFrom","type":"function","stateMutability":"nonpayable","inputs":[{"name":"sender","type":"address"},{"name":"recipient","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
	]`

	AaveSupplyABI = `[
		{"name":"supply","type":"function","stateMutability":"nonpayable","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"onBehalfOf","type":"address"},{"name":"referralCode","type":"uint16"}],"outputs":[]}
	]`

	AaveWithdrawABI = `[
		{"name":"withdraw","type":"function","stateMutability":"nonpayable","inputs":[{"name":"asset","type":"address"},{"name":"amount","type":"uint256"},{"name":"to","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
	]`

	MulticallABI = `[
		{"name":"multicall","type":"function","stateMutability":"payable","inputs":[{"name":"calls","type":"tuple[]","components":[{"name":"target","type":"address"},{"name":"callData","type":"bytes"},{"name":"value","type":"uint256"}]}],"outputs":[{"name":"results","type":"bytes[]"}]}
	]`

	StargateSwapABI = `[
		{"name":"swap","type":"function","stateMutability":"payable","inputs":[{"name":"_dstChainId","type":"uint16"},{"name":"_srcPoolId","type":"uint256"},{"name":"_dstPoolId","type":"uint256"},{"name":"_refundAddress","type":"address"},{"name":"_amountLD","type":"uint256"},{"name":"_minAmountLD","type":"uint256"},{"name":"_lzTxParams","type":"tuple","components":[{"name":"dstGasForCall","type":"uint256"},{"name":"dstNativeAmount","type":"uint256"},{"name":"dstNativeAddr","type":"bytes"}]},{"name":"_to","type":"bytes"},{"name":"_payload","type":"bytes"}],"outputs":[]}
	]`

	StargateQuoteFeeABI = `[
		{"name":"quoteLayerZeroFee","type":"function","stateMutability":"view","inputs":[{"name":"_dstChainId","type":"uint16"},{"name":"_functionType","type":"uint8"},{"name":"_toAddress","type":"bytes"},{"name":"_transferAndCallPayload","type":"bytes"},{"name":"_lzTxParams","type":"tuple","components":[{"name":"dstGasForCall","type":"uint256"},{"name":"dstNativeAmount","type":"uint256"},{"name":"dstNativeAddr","type":"bytes"}]}],"outputs":[{"name":"","type":"uint256"},{"name":"","type":"uint256"}]}
	]`
)
