package adapter

// ChainParam is the chainName parameter shared by every tool.
func ChainParam(chains []string) Parameter {
	return Parameter{
		Name:        "chainName",
		Type:        TypeString,
		Description: "Chain name where the operation is executed",
		Enum:        chains,
		Required:    true,
	}
}

func AccountParam() Parameter {
	return Parameter{
		Name:        "account",
		Type:        TypeString,
		Description: "Account address that will execute the operation",
		Required:    true,
	}
}

func AmountParam(description string) Parameter {
	return Parameter{Name: "amount", Type: TypeString, Description: description, Required: true}
}
