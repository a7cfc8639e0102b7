package core

// Default category policy, split into discretionary and essential labels.
// These seed the category_config table once; later edits are user-driven.

var defaultDiscretionaryCategories = []string{
	"Food and Drink",
	"Restaurants",
	"Fast Food",
	"Coffee Shop",
	"Entertainment",
	"Recreation",
	"Shopping",
	"Clothing",
	"Electronics",
	"Sporting Goods",
	"Travel",
	"Airlines",
	"Hotels",
	"Bars",
	"Alcohol",
	"Tobacco",
	"Gambling",
	"Personal Care",
	"Gyms and Fitness Centers",
}

var defaultEssentialCategories = []string{
	"Groceries",
	"Supermarkets and Groceries",
	"Rent",
	"Mortgage",
	"Utilities",
	"Gas Stations",
	"Automotive",
	"Insurance",
	"Healthcare",
	"Pharmacy",
	"Medical",
	"Education",
	"Childcare",
	"Government and Non-Profit",
	"Taxes",
	"Bank Fees",
	"Interest",
	"Transfer",
	"Payment",
}

// DefaultCategoryConfigs returns the seed rows for the category policy
// store, discretionary labels first.
func DefaultCategoryConfigs() []CategoryConfig {
	configs := make([]CategoryConfig, 0, len(defaultDiscretionaryCategories)+len(defaultEssentialCategories))
	for _, c := range defaultDiscretionaryCategories {
		configs = append(configs, CategoryConfig{Category: c, DisplayName: c, IsDiscretionary: true})
	}
	for _, c := range defaultEssentialCategories {
		configs = append(configs, CategoryConfig{Category: c, DisplayName: c, IsDiscretionary: false})
	}
	return configs
}
