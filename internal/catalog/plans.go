package catalog

var defaultPlans = []PlanRecord{
	{
		ID:   0,
		Name: "Vegetarian Weight Loss",
		Meals: Meals{
			Breakfast: "Oatmeal with berries and almond butter",
			Lunch:     "Quinoa salad with chickpeas and vegetables",
			Dinner:    "Grilled vegetable wrap with hummus",
		},
		Calories: 1500,
		Macros:   Macros{Protein: 55, Carbs: 180, Fats: 45},
	},
	{
		ID:   1,
		Name: "High Protein Muscle Gain",
		Meals: Meals{
			Breakfast: "Egg white omelette with spinach and whole grain toast",
			Lunch:     "Grilled chicken breast with brown rice and broccoli",
			Dinner:    "Salmon with sweet potato and asparagus",
		},
		Calories: 2500,
		Macros:   Macros{Protein: 150, Carbs: 250, Fats: 70},
	},
	{
		ID:   2,
		Name: "Balanced Maintenance",
		Meals: Meals{
			Breakfast: "Greek yogurt with granola and fruit",
			Lunch:     "Turkey and avocado sandwich",
			Dinner:    "Lean beef stir-fry with mixed vegetables",
		},
		Calories: 2000,
		Macros:   Macros{Protein: 100, Carbs: 200, Fats: 60},
	},
	{
		ID:   3,
		Name: "Vegan Weight Loss",
		Meals: Meals{
			Breakfast: "Chia pudding with almond milk and mango",
			Lunch:     "Lentil soup with mixed greens",
			Dinner:    "Tofu and vegetable stir-fry with cauliflower rice",
		},
		Calories: 1450,
		Macros:   Macros{Protein: 60, Carbs: 170, Fats: 45},
	},
	{
		ID:   4,
		Name: "Vegan Muscle Builder",
		Meals: Meals{
			Breakfast: "Pea protein smoothie with banana and oats",
			Lunch:     "Tempeh bowl with quinoa and edamame",
			Dinner:    "Seitan with roasted potatoes and kale",
		},
		Calories: 2600,
		Macros:   Macros{Protein: 140, Carbs: 300, Fats: 75},
	},
	{
		ID:   5,
		Name: "Keto Fat Loss",
		Meals: Meals{
			Breakfast: "Scrambled eggs with avocado and spinach",
			Lunch:     "Cobb salad with olive oil dressing",
			Dinner:    "Pan-seared salmon with buttered zucchini",
		},
		Calories: 1600,
		Macros:   Macros{Protein: 95, Carbs: 25, Fats: 125},
	},
	{
		ID:   6,
		Name: "Keto Performance",
		Meals: Meals{
			Breakfast: "Bacon and cheese omelette",
			Lunch:     "Ribeye steak with creamed spinach",
			Dinner:    "Chicken thighs with pesto and broccoli",
		},
		Calories: 2400,
		Macros:   Macros{Protein: 150, Carbs: 35, Fats: 185},
	},
	{
		ID:   7,
		Name: "Paleo Lean Gains",
		Meals: Meals{
			Breakfast: "Sweet potato hash with eggs",
			Lunch:     "Bison burger lettuce wraps",
			Dinner:    "Roast chicken with root vegetables",
		},
		Calories: 2500,
		Macros:   Macros{Protein: 170, Carbs: 200, Fats: 95},
	},
	{
		ID:   8,
		Name: "Paleo Maintenance",
		Meals: Meals{
			Breakfast: "Banana almond pancakes",
			Lunch:     "Grilled shrimp salad with citrus dressing",
			Dinner:    "Pork tenderloin with roasted squash",
		},
		Calories: 2100,
		Macros:   Macros{Protein: 120, Carbs: 170, Fats: 90},
	},
	{
		ID:   9,
		Name: "Low-Carb Weight Loss",
		Meals: Meals{
			Breakfast: "Cottage cheese with walnuts",
			Lunch:     "Turkey lettuce wraps with cucumber",
			Dinner:    "Baked cod with green beans",
		},
		Calories: 1550,
		Macros:   Macros{Protein: 120, Carbs: 80, Fats: 70},
	},
	{
		ID:   10,
		Name: "Low-Carb Maintenance",
		Meals: Meals{
			Breakfast: "Veggie frittata",
			Lunch:     "Chicken Caesar salad without croutons",
			Dinner:    "Steak with roasted mushrooms and asparagus",
		},
		Calories: 2000,
		Macros:   Macros{Protein: 130, Carbs: 100, Fats: 110},
	},
	{
		ID:   11,
		Name: "Mediterranean Heart Health",
		Meals: Meals{
			Breakfast: "Whole grain toast with olive oil and tomato",
			Lunch:     "Greek salad with chickpeas and feta",
			Dinner:    "Grilled sardines with farro and greens",
		},
		Calories: 1900,
		Macros:   Macros{Protein: 85, Carbs: 220, Fats: 75},
	},
	{
		ID:   12,
		Name: "Mediterranean Balanced",
		Meals: Meals{
			Breakfast: "Greek yogurt with honey and pistachios",
			Lunch:     "Falafel wrap with tabbouleh",
			Dinner:    "Baked sea bass with couscous and ratatouille",
		},
		Calories: 2100,
		Macros:   Macros{Protein: 100, Carbs: 240, Fats: 80},
	},
	{
		ID:   13,
		Name: "Pescatarian Lean",
		Meals: Meals{
			Breakfast: "Smoked salmon on rye with cream cheese",
			Lunch:     "Tuna nicoise salad",
			Dinner:    "Shrimp and vegetable skewers with quinoa",
		},
		Calories: 1650,
		Macros:   Macros{Protein: 115, Carbs: 150, Fats: 60},
	},
	{
		ID:   14,
		Name: "Pescatarian Performance",
		Meals: Meals{
			Breakfast: "Eggs with smoked trout and toast",
			Lunch:     "Salmon poke bowl with brown rice",
			Dinner:    "Miso cod with soba noodles and bok choy",
		},
		Calories: 2500,
		Macros:   Macros{Protein: 155, Carbs: 280, Fats: 80},
	},
	{
		ID:   15,
		Name: "Gluten-Free Balanced",
		Meals: Meals{
			Breakfast: "Buckwheat porridge with apple and cinnamon",
			Lunch:     "Rice noodle salad with chicken and peanuts",
			Dinner:    "Lamb kofta with millet and roasted peppers",
		},
		Calories: 2000,
		Macros:   Macros{Protein: 105, Carbs: 230, Fats: 70},
	},
	{
		ID:   16,
		Name: "Endurance Carb Loading",
		Meals: Meals{
			Breakfast: "Bagel with peanut butter and banana",
			Lunch:     "Whole wheat pasta with chicken and marinara",
			Dinner:    "Rice bowl with lean beef and vegetables",
		},
		Calories: 2900,
		Macros:   Macros{Protein: 130, Carbs: 450, Fats: 65},
	},
	{
		ID:   17,
		Name: "Vegetarian Muscle Gain",
		Meals: Meals{
			Breakfast: "Protein pancakes with Greek yogurt",
			Lunch:     "Paneer tikka with brown rice",
			Dinner:    "Black bean and cheese enchiladas",
		},
		Calories: 2500,
		Macros:   Macros{Protein: 135, Carbs: 290, Fats: 85},
	},
	{
		ID:   18,
		Name: "Vegetarian Maintenance",
		Meals: Meals{
			Breakfast: "Avocado toast with poached eggs",
			Lunch:     "Caprese sandwich with side salad",
			Dinner:    "Vegetable lasagna",
		},
		Calories: 2000,
		Macros:   Macros{Protein: 85, Carbs: 240, Fats: 75},
	},
	{
		ID:   19,
		Name: "High Protein Cut",
		Meals: Meals{
			Breakfast: "Egg whites with turkey sausage",
			Lunch:     "Grilled chicken salad with lemon vinaigrette",
			Dinner:    "Lean steak with steamed broccoli",
		},
		Calories: 1800,
		Macros:   Macros{Protein: 180, Carbs: 120, Fats: 55},
	},
}
